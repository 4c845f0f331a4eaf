// Package metrics aggregates per-run workload counters and ack-latency
// distribution in a thread-safe collector.
package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector records producer and consumer events during a run. Safe for
// concurrent use by the loops and the send-completion callbacks.
type Collector struct {
	mu             sync.Mutex
	ackHist        *hdrhistogram.Histogram
	sent           int64
	uniqueSent     int64
	acked          int64
	sendFailures   int64
	received       int64
	uniqueReceived int64
	duplicates     int64
	start          time.Time
}

// Stats is an aggregated snapshot of a run.
type Stats struct {
	Sent           int64         `json:"sent"`
	UniqueSent     int64         `json:"unique_sent"`
	Acked          int64         `json:"acked"`
	SendFailures   int64         `json:"send_failures"`
	Received       int64         `json:"received"`
	UniqueReceived int64         `json:"unique_received"`
	Duplicates     int64         `json:"duplicates"`
	Duration       time.Duration `json:"-"`
	MessagesPerSec float64       `json:"messages_per_sec"`

	MinAckLatency time.Duration `json:"-"`
	MaxAckLatency time.Duration `json:"-"`
	P50AckLatency time.Duration `json:"-"`
	P90AckLatency time.Duration `json:"-"`
	P99AckLatency time.Duration `json:"-"`

	// JSON-friendly millisecond fields.
	DurationMs      float64 `json:"duration_ms"`
	MinAckLatencyMs float64 `json:"min_ack_latency_ms"`
	MaxAckLatencyMs float64 `json:"max_ack_latency_ms"`
	P50AckLatencyMs float64 `json:"p50_ack_latency_ms"`
	P90AckLatencyMs float64 `json:"p90_ack_latency_ms"`
	P99AckLatencyMs float64 `json:"p99_ack_latency_ms"`
	SendFailureRate float64 `json:"send_failure_rate"`
}

func NewCollector() *Collector {
	// Track ack latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		ackHist: h,
		start:   time.Now(),
	}
}

// Start resets the collector's start time to now, marking when load actually
// begins.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

// StartTime returns when the run began.
func (c *Collector) StartTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start
}

// RecordSend records one send attempt; firstSend marks a frontier index.
func (c *Collector) RecordSend(firstSend bool) {
	c.mu.Lock()
	c.sent++
	if firstSend {
		c.uniqueSent++
	}
	c.mu.Unlock()
}

// RecordAck records a durable send acknowledgment and its latency.
func (c *Collector) RecordAck(latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.acked++
	if latency <= 0 {
		return
	}
	us := latency.Microseconds()
	if us < c.ackHist.LowestTrackableValue() {
		us = c.ackHist.LowestTrackableValue()
	}
	if us > c.ackHist.HighestTrackableValue() {
		us = c.ackHist.HighestTrackableValue()
	}
	_ = c.ackHist.RecordValue(us)
}

// RecordSendFailure records a failed send attempt that will be retried.
func (c *Collector) RecordSendFailure() {
	c.mu.Lock()
	c.sendFailures++
	c.mu.Unlock()
}

// RecordReceive records one delivered record; duplicate marks a receipt whose
// index had already been received.
func (c *Collector) RecordReceive(duplicate bool) {
	c.mu.Lock()
	c.received++
	if duplicate {
		c.duplicates++
	} else {
		c.uniqueReceived++
	}
	c.mu.Unlock()
}

// Stats computes the aggregated snapshot for the given elapsed duration.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Sent:           c.sent,
		UniqueSent:     c.uniqueSent,
		Acked:          c.acked,
		SendFailures:   c.sendFailures,
		Received:       c.received,
		UniqueReceived: c.uniqueReceived,
		Duplicates:     c.duplicates,
		Duration:       elapsed,
	}

	if c.ackHist.TotalCount() > 0 {
		stats.MinAckLatency = time.Duration(c.ackHist.Min()) * time.Microsecond
		stats.MaxAckLatency = time.Duration(c.ackHist.Max()) * time.Microsecond
		stats.P50AckLatency = time.Duration(c.ackHist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90AckLatency = time.Duration(c.ackHist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99AckLatency = time.Duration(c.ackHist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.DurationMs = float64(elapsed) / float64(time.Millisecond)
	stats.MinAckLatencyMs = float64(stats.MinAckLatency) / float64(time.Millisecond)
	stats.MaxAckLatencyMs = float64(stats.MaxAckLatency) / float64(time.Millisecond)
	stats.P50AckLatencyMs = float64(stats.P50AckLatency) / float64(time.Millisecond)
	stats.P90AckLatencyMs = float64(stats.P90AckLatency) / float64(time.Millisecond)
	stats.P99AckLatencyMs = float64(stats.P99AckLatency) / float64(time.Millisecond)

	if elapsed > 0 && c.uniqueReceived > 0 {
		stats.MessagesPerSec = float64(c.uniqueReceived) / elapsed.Seconds()
	}
	if c.sent > 0 {
		stats.SendFailureRate = float64(c.sendFailures) / float64(c.sent)
	}
	return stats
}

package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sgoran/roundtrip/internal/broker"
	"github.com/sgoran/roundtrip/internal/engine"
	"github.com/sgoran/roundtrip/internal/metrics"
	"github.com/sgoran/roundtrip/internal/payload"
	"github.com/sgoran/roundtrip/internal/throttle"
)

// captureSink records every status snapshot pushed to it.
type captureSink struct {
	mu       sync.Mutex
	statuses []engine.StatusData
}

func (s *captureSink) Push(status engine.StatusData) {
	s.mu.Lock()
	s.statuses = append(s.statuses, status)
	s.mu.Unlock()
}

func (s *captureSink) last() (engine.StatusData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return engine.StatusData{}, false
	}
	return s.statuses[len(s.statuses)-1], true
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.statuses)
}

func fastGovernor(t *testing.T) throttle.Governor {
	t.Helper()
	g, err := throttle.New(throttle.Config{TargetPerSecond: 100000})
	if err != nil {
		t.Fatalf("governor: %v", err)
	}
	return g
}

func loopbackOptions(t *testing.T, maxMessages int64, lb *broker.Loopback) engine.Options {
	t.Helper()
	return engine.Options{
		MaxMessages: maxMessages,
		Partitions:  []broker.TopicPartition{{Topic: "round-trip", Partition: 0}},
		Producer:    lb,
		Consumer:    lb,
		Governor:    fastGovernor(t),
		Collector:   metrics.NewCollector(),
	}
}

func waitDone(t *testing.T, w *engine.Worker, timeout time.Duration) error {
	t.Helper()
	select {
	case <-w.Done():
		return w.Err()
	case <-time.After(timeout):
		t.Fatal("workload did not settle in time")
		return nil
	}
}

func TestWorkerCompletesSingleMessage(t *testing.T) {
	lb := broker.NewLoopback(16)
	sink := &captureSink{}
	opt := loopbackOptions(t, 1, lb)
	opt.Sink = sink

	w := engine.NewWorker(opt)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := waitDone(t, w, 5*time.Second); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	status, ok := sink.last()
	if !ok {
		t.Fatal("no status was pushed")
	}
	if status.TotalUniqueSent != 1 || status.TotalReceived != 1 {
		t.Fatalf("expected final status {1,1}, got %+v", status)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("stop after completion failed: %v", err)
	}
	if err := w.Err(); err != nil {
		t.Fatalf("stop must not overwrite a settled success, got %v", err)
	}
	if err := w.Stop(); !errors.Is(err, engine.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning on second stop, got %v", err)
	}
}

func TestWorkerCompletesWithSendFailures(t *testing.T) {
	const maxMessages = 50
	lb := broker.NewLoopback(maxMessages * 2)

	// Fail the first attempt of every even index; retries then succeed.
	var mu sync.Mutex
	failed := make(map[int64]bool)
	lb.SetFailSends(func(rec broker.Record) error {
		index, err := payload.DecodeIndex(rec.Key)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if index%2 == 0 && !failed[index] {
			failed[index] = true
			return errors.New("injected transient send failure")
		}
		return nil
	})

	collector := metrics.NewCollector()
	opt := loopbackOptions(t, maxMessages, lb)
	opt.Collector = collector

	w := engine.NewWorker(opt)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := waitDone(t, w, 10*time.Second); err != nil {
		t.Fatalf("expected success despite injected failures, got %v", err)
	}

	stats := collector.Stats(time.Second)
	if stats.Acked != maxMessages {
		t.Fatalf("expected exactly %d acks, got %d", maxMessages, stats.Acked)
	}
	if stats.UniqueReceived != maxMessages {
		t.Fatalf("expected %d unique receipts, got %d", maxMessages, stats.UniqueReceived)
	}
	if stats.SendFailures != maxMessages/2 {
		t.Fatalf("expected %d send failures, got %d", maxMessages/2, stats.SendFailures)
	}
	if stats.Sent != maxMessages+maxMessages/2 {
		t.Fatalf("expected %d total attempts, got %d", maxMessages+maxMessages/2, stats.Sent)
	}
}

// heldAckProducer delivers records normally but withholds completion
// callbacks until released, simulating slow durable acknowledgment.
type heldAckProducer struct {
	inner   *broker.Loopback
	release chan struct{}
}

func (p *heldAckProducer) Send(ctx context.Context, rec broker.Record, done func(err error)) {
	p.inner.Send(ctx, rec, func(err error) {
		go func() {
			<-p.release
			done(err)
		}()
	})
}

func (p *heldAckProducer) Close() { p.inner.Close() }

func TestWorkerCompletionWaitsForOutstandingAcks(t *testing.T) {
	lb := broker.NewLoopback(4)
	producer := &heldAckProducer{inner: lb, release: make(chan struct{})}

	opt := loopbackOptions(t, 1, lb)
	opt.Producer = producer

	w := engine.NewWorker(opt)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// The record is delivered and received, but its ack is held, so the
	// workload must not declare success yet.
	select {
	case <-w.Done():
		t.Fatal("workload settled while a send was still outstanding")
	case <-time.After(200 * time.Millisecond):
	}

	close(producer.release)
	if err := waitDone(t, w, 5*time.Second); err != nil {
		t.Fatalf("expected success after acks released, got %v", err)
	}
}

func TestWorkerStopSettlesCancellation(t *testing.T) {
	const maxMessages = 1000
	lb := broker.NewLoopback(16)
	// Every send fails, so no message can ever complete a round trip.
	lb.SetFailSends(func(broker.Record) error {
		return errors.New("broker unavailable")
	})

	g, err := throttle.New(throttle.Config{TargetPerSecond: 200})
	if err != nil {
		t.Fatalf("governor: %v", err)
	}
	opt := loopbackOptions(t, maxMessages, lb)
	opt.Governor = g

	w := engine.NewWorker(opt)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := w.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := w.Err(); !errors.Is(err, engine.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if err := w.Stop(); !errors.Is(err, engine.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning on second stop, got %v", err)
	}
}

func TestWorkerStartTwiceRejected(t *testing.T) {
	lb := broker.NewLoopback(4)
	w := engine.NewWorker(loopbackOptions(t, 1, lb))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := w.Start(context.Background()); !errors.Is(err, engine.ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	waitDone(t, w, 5*time.Second)
	w.Stop()
}

func TestWorkerRejectsInvalidConfiguration(t *testing.T) {
	lb := broker.NewLoopback(4)

	opt := loopbackOptions(t, 1, lb)
	opt.Partitions = nil
	w := engine.NewWorker(opt)
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail with no partitions")
	}
	if err := waitDone(t, w, time.Second); err == nil {
		t.Fatal("expected completion to settle with the configuration error")
	}

	opt = loopbackOptions(t, 0, lb)
	if err := engine.NewWorker(opt).Start(context.Background()); err == nil {
		t.Fatal("expected start to fail with non-positive maxMessages")
	}
}

func TestWorkerProvisionFailureAborts(t *testing.T) {
	lb := broker.NewLoopback(4)
	opt := loopbackOptions(t, 1, lb)
	boom := errors.New("topic creation denied")
	opt.Provision = func(context.Context) error { return boom }

	w := engine.NewWorker(opt)
	if err := w.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected provision error from start, got %v", err)
	}
	if err := waitDone(t, w, time.Second); !errors.Is(err, boom) {
		t.Fatalf("expected provision error to settle completion, got %v", err)
	}
}

func TestWorkerIgnoresUnknownReceipts(t *testing.T) {
	lb := broker.NewLoopback(16)

	// A stray record for an index that was never registered must be ignored.
	stray := payload.NewKeyGenerator().Generate(9999)
	lb.Send(context.Background(), broker.Record{Topic: "round-trip", Key: stray}, func(error) {})

	collector := metrics.NewCollector()
	opt := loopbackOptions(t, 3, lb)
	opt.Collector = collector

	w := engine.NewWorker(opt)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := waitDone(t, w, 5*time.Second); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	stats := collector.Stats(time.Second)
	if stats.Duplicates != 1 {
		t.Fatalf("expected the stray receipt to be counted as duplicate/unknown, got %d", stats.Duplicates)
	}
	if stats.UniqueReceived != 3 {
		t.Fatalf("expected 3 unique receipts, got %d", stats.UniqueReceived)
	}
}

func TestStatusReporterPushesPeriodically(t *testing.T) {
	lb := broker.NewLoopback(16)
	// Sends always fail so the run never completes on its own.
	lb.SetFailSends(func(broker.Record) error { return errors.New("unavailable") })

	g, err := throttle.New(throttle.Config{TargetPerSecond: 100})
	if err != nil {
		t.Fatalf("governor: %v", err)
	}
	sink := &captureSink{}
	opt := loopbackOptions(t, 100, lb)
	opt.Governor = g
	opt.Sink = sink
	opt.StatusInterval = 20 * time.Millisecond

	w := engine.NewWorker(opt)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := w.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if sink.count() < 3 {
		t.Fatalf("expected several periodic status pushes, got %d", sink.count())
	}
	status, _ := sink.last()
	if status.TotalReceived != 0 {
		t.Fatalf("expected zero receipts with failing sends, got %+v", status)
	}
}

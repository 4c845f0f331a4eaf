package engine

import "go.uber.org/zap"

// StatusData is the progress record pushed to the status sink.
type StatusData struct {
	TotalUniqueSent int64 `json:"totalUniqueSent"`
	TotalReceived   int64 `json:"totalReceived"`
}

// StatusSink accepts progress snapshots for external reporting. Push must not
// block on broker I/O.
type StatusSink interface {
	Push(status StatusData)
}

type discardSink struct{}

func (discardSink) Push(StatusData) {}

// LogSink reports status snapshots through the run logger.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Push(status StatusData) {
	s.Log.Info("workload status",
		zap.Int64("total_unique_sent", status.TotalUniqueSent),
		zap.Int64("total_received", status.TotalReceived))
}

// SinkFunc adapts a function to the StatusSink interface.
type SinkFunc func(status StatusData)

func (f SinkFunc) Push(status StatusData) { f(status) }

// MultiSink fans a snapshot out to several sinks.
type MultiSink []StatusSink

func (m MultiSink) Push(status StatusData) {
	for _, sink := range m {
		sink.Push(status)
	}
}

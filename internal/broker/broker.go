// Package broker is the engine's view of the message broker: an asynchronous
// producer, a minimal poll/close consumer capability with two Kafka-backed
// variants, a loopback implementation for tests, and topic provisioning.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
)

// ErrClosed is returned by Poll once the underlying client has been closed.
var ErrClosed = errors.New("broker client closed")

// Record is one message on the wire.
type Record struct {
	Topic     string
	Partition int32
	Key       []byte
	Value     []byte
}

// TopicPartition identifies one active partition of the workload.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// Producer issues asynchronous sends. The done callback runs on a
// client-owned goroutine when the send is durably acknowledged or has
// exhausted the client's delivery attempts.
type Producer interface {
	Send(ctx context.Context, rec Record, done func(err error))
	Close()
}

// Consumer is the capability set the engine needs from a consumer client.
// Poll blocks for at most timeout and may return an empty batch.
type Consumer interface {
	Poll(ctx context.Context, timeout time.Duration) ([]Record, error)
	Close()
}

// IsTransient reports whether a poll error is an expected idle-path condition
// (bounded-timeout expiry, cooperative cancellation, retriable broker errors)
// that the consumer loop should swallow and continue past.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return kerr.IsRetriable(err)
}

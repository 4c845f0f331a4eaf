package tracker

import (
	"context"
	"sync"
)

// AckCounter counts sends that have not yet been durably acknowledged. It
// starts at the total message count and is decremented exactly once per index,
// when that index's first successful send attempt is acked. Reaching zero is a
// one-shot event: the Zero channel is closed once and never reopened.
type AckCounter struct {
	mu        sync.Mutex
	remaining int64
	zero      chan struct{}
}

func NewAckCounter(total int64) *AckCounter {
	c := &AckCounter{remaining: total, zero: make(chan struct{})}
	if total <= 0 {
		close(c.zero)
	}
	return c
}

// Ack records one durable send acknowledgment. The counter never goes
// negative; acks past zero are ignored.
func (c *AckCounter) Ack() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remaining <= 0 {
		return
	}
	c.remaining--
	if c.remaining == 0 {
		close(c.zero)
	}
}

// Remaining returns the number of sends still awaiting acknowledgment.
func (c *AckCounter) Remaining() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Zero is closed once every send has been acknowledged.
func (c *AckCounter) Zero() <-chan struct{} {
	return c.zero
}

// WaitZero blocks until the counter reaches zero or ctx is cancelled.
func (c *AckCounter) WaitZero(ctx context.Context) error {
	select {
	case <-c.zero:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package tracker holds the per-run bookkeeping for the round-trip workload:
// which message indices still need to be sent, which have been sent but not
// yet observed by the consumer, and how many sends still await a durable ack.
package tracker

import "sync"

// SendResult is a single index drawn from a SendTracker. FirstSend is true
// when the index came off the frontier and has never been attempted before.
type SendResult struct {
	Index     int64
	FirstSend bool
}

// SendTracker owns the index space [0, maxMessages). Retries of previously
// failed sends take precedence over new frontier indices. A frontier index is
// handed out as a first send exactly once.
type SendTracker struct {
	mu          sync.Mutex
	maxMessages int64
	frontier    int64
	failed      []int64
}

// NewSendTracker creates a tracker over the index space [0, maxMessages).
func NewSendTracker(maxMessages int64) *SendTracker {
	return &SendTracker{maxMessages: maxMessages}
}

// Next returns the next index to send. Failed indices are re-issued in FIFO
// order before the frontier advances. ok is false once the frontier has
// reached maxMessages and no retries remain.
func (t *SendTracker) Next() (res SendResult, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.failed) > 0 {
		index := t.failed[0]
		t.failed = t.failed[1:]
		return SendResult{Index: index, FirstSend: false}, true
	}
	if t.frontier >= t.maxMessages {
		return SendResult{}, false
	}
	res = SendResult{Index: t.frontier, FirstSend: true}
	t.frontier++
	return res, true
}

// AddFailed queues an index whose send attempt failed for another attempt.
func (t *SendTracker) AddFailed(index int64) {
	t.mu.Lock()
	t.failed = append(t.failed, index)
	t.mu.Unlock()
}

// Frontier returns the next never-attempted index, which equals the number of
// unique indices handed out so far.
func (t *SendTracker) Frontier() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frontier
}

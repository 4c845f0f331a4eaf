package broker

import (
	"context"
	"sync"
	"time"
)

// Loopback is an in-process broker: sends are delivered straight into an
// internal queue that its own Poll drains. It backs tests and dry runs with
// the same Producer/Consumer capability surface as the Kafka clients.
// FailSends, when set, is consulted per record to inject send failures.
type Loopback struct {
	ch        chan Record
	closeOnce sync.Once

	mu        sync.Mutex
	FailSends func(rec Record) error
}

func NewLoopback(buffer int) *Loopback {
	if buffer <= 0 {
		buffer = 128
	}
	return &Loopback{ch: make(chan Record, buffer)}
}

// Send delivers the record and invokes done on a separate goroutine, matching
// the client-owned-thread contract of the real producer.
func (l *Loopback) Send(ctx context.Context, rec Record, done func(err error)) {
	l.mu.Lock()
	failer := l.FailSends
	l.mu.Unlock()

	if failer != nil {
		if err := failer(rec); err != nil {
			go done(err)
			return
		}
	}

	select {
	case l.ch <- rec:
		go done(nil)
	case <-ctx.Done():
		go done(ctx.Err())
	}
}

// SetFailSends installs or clears the send failure injector.
func (l *Loopback) SetFailSends(fn func(rec Record) error) {
	l.mu.Lock()
	l.FailSends = fn
	l.mu.Unlock()
}

func (l *Loopback) Poll(ctx context.Context, timeout time.Duration) ([]Record, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rec, ok := <-l.ch:
		if !ok {
			return nil, ErrClosed
		}
		records := []Record{rec}
		for {
			select {
			case rec, ok := <-l.ch:
				if !ok {
					return records, nil
				}
				records = append(records, rec)
			default:
				return records, nil
			}
		}
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close is safe to call from both the producer and consumer sides.
func (l *Loopback) Close() {
	l.closeOnce.Do(func() { close(l.ch) })
}

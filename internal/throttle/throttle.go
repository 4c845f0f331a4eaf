// Package throttle paces the producer loop to a target messages-per-second
// rate. Two pacing models are available: a fixed-window quota governor and a
// token-bucket pacer built on rate.Limiter.
package throttle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultWindow is the quota window length for the windowed model.
const DefaultWindow = 100 * time.Millisecond

type Model string

const (
	ModelWindowed Model = "windowed"
	ModelUniform  Model = "uniform"
)

// Governor admits one send per successful Wait call, blocking as needed to
// hold the configured rate.
type Governor interface {
	Wait(ctx context.Context) error
}

// Config selects and parameterizes a Governor.
type Config struct {
	Model           Model
	TargetPerSecond int
	Window          time.Duration // windowed model only; DefaultWindow if zero
}

// New builds a Governor from config. The target rate must be positive.
func New(cfg Config) (Governor, error) {
	if cfg.TargetPerSecond <= 0 {
		return nil, fmt.Errorf("target rate must be > 0, got %d", cfg.TargetPerSecond)
	}
	switch Model(strings.ToLower(string(cfg.Model))) {
	case ModelUniform:
		return newUniform(cfg.TargetPerSecond), nil
	case ModelWindowed, "":
		window := cfg.Window
		if window <= 0 {
			window = DefaultWindow
		}
		return newWindowed(cfg.TargetPerSecond, window), nil
	default:
		return nil, fmt.Errorf("unknown throttle model %q: use \"windowed\" or \"uniform\"", cfg.Model)
	}
}

// windowed admits at most quotaPerWindow sends within any fixed window. Once
// the quota is exhausted, callers block until the next window boundary.
type windowed struct {
	mu       sync.Mutex
	quota    int
	window   time.Duration
	used     int
	deadline time.Time
}

func newWindowed(perSecond int, window time.Duration) *windowed {
	return &windowed{
		quota:  perWindowQuota(perSecond, window),
		window: window,
	}
}

// perWindowQuota converts a per-second rate into a per-window quota, rounding
// to the nearest whole message with a minimum of one.
func perWindowQuota(perSecond int, window time.Duration) int {
	quota := int((int64(perSecond)*window.Milliseconds() + 500) / 1000)
	if quota < 1 {
		quota = 1
	}
	return quota
}

func (w *windowed) Wait(ctx context.Context) error {
	for {
		w.mu.Lock()
		now := time.Now()
		if !now.Before(w.deadline) {
			w.deadline = now.Add(w.window)
			w.used = 0
		}
		if w.used < w.quota {
			w.used++
			w.mu.Unlock()
			return nil
		}
		sleep := w.deadline.Sub(now)
		w.mu.Unlock()

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// uniform spaces sends evenly via a rate.Limiter with burst 1.
type uniform struct {
	limiter *rate.Limiter
}

func newUniform(perSecond int) *uniform {
	return &uniform{limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (u *uniform) Wait(ctx context.Context) error {
	return u.limiter.Wait(ctx)
}

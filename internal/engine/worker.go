// Package engine runs the round-trip workload: a producer loop feeding
// indices from the send tracker through the throttle into asynchronous sends,
// a consumer loop verifying receipts, and a status reporter, coordinated by a
// Worker with a strict start/stop lifecycle and a one-shot completion result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/sgoran/roundtrip/internal/broker"
	"github.com/sgoran/roundtrip/internal/metrics"
	"github.com/sgoran/roundtrip/internal/payload"
	"github.com/sgoran/roundtrip/internal/throttle"
	"github.com/sgoran/roundtrip/internal/tracker"
)

const (
	pollTimeout        = 50 * time.Millisecond
	pendingLogInterval = 5 * time.Second
	pendingLogSample   = 10
	// Effectively "wait for graceful shutdown, not indefinitely".
	shutdownWait = 24 * time.Hour

	defaultStatusInterval = 30 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("workload is already running")
	ErrNotRunning     = errors.New("workload is not running")
	// ErrStopped settles the completion result when Stop wins the race
	// against normal completion.
	ErrStopped = errors.New("workload stopped before completion")
)

// Lifecycle states.
const (
	stateIdle int32 = iota
	stateStarting
	stateRunning
	stateStopping
	stateStopped
)

// Options configure a Worker. Producer, Consumer, Governor and at least one
// partition are required; the rest have defaults.
type Options struct {
	MaxMessages    int64
	Partitions     []broker.TopicPartition
	Producer       broker.Producer
	Consumer       broker.Consumer
	Governor       throttle.Governor
	KeyGen         payload.Generator
	ValueGen       payload.Generator
	Sink           StatusSink
	StatusInterval time.Duration
	Collector      *metrics.Collector
	Logger         *zap.Logger

	// Provision, when set, runs during Start before any loop launches,
	// typically to create the workload topics.
	Provision func(ctx context.Context) error
}

func (o *Options) normalize() error {
	if o.MaxMessages <= 0 {
		return fmt.Errorf("maxMessages must be > 0, got %d", o.MaxMessages)
	}
	if len(o.Partitions) == 0 {
		return errors.New("at least one active topic-partition is required")
	}
	if o.Producer == nil || o.Consumer == nil {
		return errors.New("producer and consumer clients are required")
	}
	if o.Governor == nil {
		return errors.New("throttle governor is required")
	}
	if o.KeyGen == nil {
		o.KeyGen = payload.NewKeyGenerator()
	}
	if o.ValueGen == nil {
		o.ValueGen = payload.NewConstant(64)
	}
	if o.Sink == nil {
		o.Sink = discardSink{}
	}
	if o.StatusInterval <= 0 {
		o.StatusInterval = defaultStatusInterval
	}
	if o.Collector == nil {
		o.Collector = metrics.NewCollector()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return nil
}

// Worker coordinates one run of the workload. All tracker state is created in
// Start and belongs to that run alone.
type Worker struct {
	opt   Options
	log   *zap.Logger
	runID string

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup

	send     *tracker.SendTracker
	recv     *tracker.ReceiveTracker
	acks     *tracker.AckCounter
	inflight atomic.Int64

	settleOnce sync.Once
	done       chan struct{}
	doneErr    error
}

func NewWorker(opt Options) *Worker {
	return &Worker{opt: opt, done: make(chan struct{})}
}

// Start validates configuration, provisions resources and launches the
// producer, consumer and status loops. It returns ErrAlreadyStarted if the
// worker has ever been started.
func (w *Worker) Start(ctx context.Context) error {
	if !w.state.CompareAndSwap(stateIdle, stateStarting) {
		return ErrAlreadyStarted
	}

	if err := w.opt.normalize(); err != nil {
		err = fmt.Errorf("invalid workload configuration: %w", err)
		w.settle(err)
		w.state.Store(stateStopped)
		return err
	}

	w.runID = ulid.MustNew(ulid.Timestamp(time.Now()), rand.New(rand.NewSource(time.Now().UnixNano()))).String()
	w.log = w.opt.Logger.With(zap.String("run_id", w.runID))
	w.log.Info("activating round-trip workload",
		zap.Int64("max_messages", w.opt.MaxMessages),
		zap.Int("partitions", len(w.opt.Partitions)))

	if w.opt.Provision != nil {
		if err := w.opt.Provision(ctx); err != nil {
			err = fmt.Errorf("provision: %w", err)
			w.settle(err)
			w.state.Store(stateStopped)
			return err
		}
	}

	w.send = tracker.NewSendTracker(w.opt.MaxMessages)
	w.recv = tracker.NewReceiveTracker()
	w.acks = tracker.NewAckCounter(w.opt.MaxMessages)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.opt.Collector.Start()

	w.wg.Add(3)
	go w.produceLoop(runCtx)
	go w.consumeLoop(runCtx)
	go w.statusLoop(runCtx)

	w.state.Store(stateRunning)
	return nil
}

// Stop cancels an in-progress run. If the run already completed normally the
// completion result is left untouched; otherwise it settles as ErrStopped.
// Returns ErrNotRunning unless the worker is currently running.
func (w *Worker) Stop() error {
	if !w.state.CompareAndSwap(stateRunning, stateStopping) {
		return ErrNotRunning
	}
	w.log.Info("deactivating round-trip workload")

	w.settle(ErrStopped)
	w.cancel()
	w.awaitLoops()

	w.opt.Producer.Close()
	w.opt.Consumer.Close()
	w.state.Store(stateStopped)
	w.log.Info("round-trip workload deactivated")
	return nil
}

func (w *Worker) awaitLoops() {
	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(shutdownWait):
		w.log.Warn("loops did not terminate within the shutdown bound")
	}
}

// RunID returns the identifier assigned to this run. Empty until Start.
func (w *Worker) RunID() string {
	return w.runID
}

// Done is closed when the completion result settles, by either the consumer's
// success path, a fatal loop error, or Stop.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Err returns the settled completion result: nil for success. Only valid
// after Done is closed.
func (w *Worker) Err() error {
	<-w.done
	return w.doneErr
}

// Status builds an on-demand snapshot of the run's progress.
func (w *Worker) Status() StatusData {
	if w.send == nil || w.recv == nil {
		return StatusData{}
	}
	return StatusData{
		TotalUniqueSent: w.send.Frontier(),
		TotalReceived:   w.recv.TotalReceived(),
	}
}

// settle records the completion result. The first caller wins; all later
// calls are no-ops.
func (w *Worker) settle(err error) {
	w.settleOnce.Do(func() {
		w.doneErr = err
		close(w.done)
	})
}

// fatal aborts the whole workload from inside a loop.
func (w *Worker) fatal(loop string, err error) {
	w.log.Error("aborting workload", zap.String("loop", loop), zap.Error(err))
	w.settle(fmt.Errorf("%s: %w", loop, err))
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Worker) pushStatus() {
	w.opt.Sink.Push(w.Status())
}

// statusLoop pushes a snapshot immediately and then on every interval tick
// until the run context ends.
func (w *Worker) statusLoop(ctx context.Context) {
	defer w.wg.Done()

	w.pushStatus()
	ticker := time.NewTicker(w.opt.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pushStatus()
		}
	}
}

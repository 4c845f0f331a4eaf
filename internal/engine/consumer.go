package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sgoran/roundtrip/internal/broker"
	"github.com/sgoran/roundtrip/internal/payload"
)

// consumeLoop polls for delivered records with a short bounded timeout,
// verifies each receipt against the pending set, and once every unique index
// has been observed waits for all sends to be acked before settling success.
func (w *Worker) consumeLoop(ctx context.Context) {
	defer w.wg.Done()

	var messagesReceived, uniqueMessagesReceived, pollsInvoked int64
	w.log.Debug("consumer loop starting")
	defer func() {
		w.log.Info("consumer loop exiting",
			zap.Int64("polls", pollsInvoked),
			zap.Int64("messages_received", messagesReceived),
			zap.Int64("unique_messages_received", uniqueMessagesReceived))
	}()

	lastPendingLog := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}
		pollsInvoked++
		records, err := w.opt.Consumer.Poll(ctx, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if broker.IsTransient(err) {
				w.log.Debug("transient poll error", zap.Error(err))
				continue
			}
			if errors.Is(err, broker.ErrClosed) {
				return
			}
			w.fatal("consumer", err)
			return
		}

		for _, rec := range records {
			index, err := payload.DecodeIndex(rec.Key)
			if err != nil {
				w.fatal("consumer", err)
				return
			}
			messagesReceived++
			if !w.recv.RemovePending(index) {
				// Duplicate or unknown receipt; not an error.
				w.opt.Collector.RecordReceive(true)
				continue
			}
			w.opt.Collector.RecordReceive(false)
			uniqueMessagesReceived++

			if uniqueMessagesReceived >= w.opt.MaxMessages {
				w.finishRun(ctx)
				return
			}
		}

		if time.Since(lastPendingLog) >= pendingLogInterval {
			count, sample := w.recv.PendingSample(pendingLogSample)
			w.log.Info("consumer waiting for messages",
				zap.Int64("pending", count),
				zap.Int64s("oldest", sample))
			lastPendingLog = time.Now()
		}
	}
}

// finishRun waits for every send to be durably acked, emits the final status
// and settles the completion result as success. A concurrent Stop can win the
// settle race, in which case this is a no-op.
func (w *Worker) finishRun(ctx context.Context) {
	w.log.Info("received the full unique message count, waiting for outstanding acks",
		zap.Int64("max_messages", w.opt.MaxMessages),
		zap.Int64("outstanding", w.acks.Remaining()))

	if err := w.acks.WaitZero(ctx); err != nil {
		// Cancelled mid-wait; whoever cancelled owns the result.
		return
	}
	w.log.Info("all sends have been acked")
	w.pushStatus()
	w.settle(nil)
}

package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sgoran/roundtrip/internal/broker"
)

// produceLoop drains the send tracker, pacing through the governor and
// issuing one asynchronous send per drawn index. Completion callbacks run on
// client-owned goroutines: a success decrements the ack counter, a failure
// queues the index for retry by a later iteration of this loop.
func (w *Worker) produceLoop(ctx context.Context) {
	defer w.wg.Done()

	var messagesSent, uniqueMessagesSent int64
	w.log.Debug("producer loop starting")

	rr := 0
	for {
		if ctx.Err() != nil {
			break
		}
		res, ok := w.send.Next()
		if !ok {
			// An attempt still awaiting its callback may yet queue a retry,
			// so only exit once no attempts are in flight.
			if w.inflight.Load() == 0 {
				break
			}
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Millisecond):
			}
			continue
		}
		if err := w.opt.Governor.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				w.fatal("producer", err)
			}
			break
		}

		index := res.Index
		if res.FirstSend {
			// Register before issuing the send so a fast receipt can never
			// race ahead of the pending entry.
			w.recv.AddPending(index)
			uniqueMessagesSent++
		}
		messagesSent++
		w.opt.Collector.RecordSend(res.FirstSend)

		tp := w.opt.Partitions[rr%len(w.opt.Partitions)]
		rr++

		sentAt := time.Now()
		w.inflight.Add(1)
		w.opt.Producer.Send(ctx, broker.Record{
			Topic:     tp.Topic,
			Partition: tp.Partition,
			Key:       w.opt.KeyGen.Generate(index),
			Value:     w.opt.ValueGen.Generate(index),
		}, func(err error) {
			if err != nil {
				w.log.Info("send failed, queued for retry",
					zap.Int64("index", index), zap.Error(err))
				w.opt.Collector.RecordSendFailure()
				w.send.AddFailed(index)
			} else {
				w.opt.Collector.RecordAck(time.Since(sentAt))
				w.acks.Ack()
			}
			w.inflight.Add(-1)
		})
	}

	w.log.Info("producer loop exiting",
		zap.Int64("messages_sent", messagesSent),
		zap.Int64("unique_messages_sent", uniqueMessagesSent),
		zap.Int64("acked", w.opt.MaxMessages-w.acks.Remaining()),
		zap.Int64("max_messages", w.opt.MaxMessages))
}

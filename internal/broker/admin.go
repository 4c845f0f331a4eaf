package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// TopicSpec describes one topic the workload needs.
type TopicSpec struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
}

// ExpandPartitions lists every active topic-partition across the specs.
func ExpandPartitions(specs []TopicSpec) []TopicPartition {
	var partitions []TopicPartition
	for _, spec := range specs {
		for p := int32(0); p < spec.Partitions; p++ {
			partitions = append(partitions, TopicPartition{Topic: spec.Name, Partition: p})
		}
	}
	return partitions
}

const (
	provisionAttempts  = 5
	provisionBaseDelay = 500 * time.Millisecond
)

// EnsureTopics creates the workload topics before load starts. Already
// existing topics are fine; retriable admin errors are retried with a fixed
// backoff before giving up.
func EnsureTopics(ctx context.Context, cfg ClientConfig, specs []TopicSpec, log *zap.Logger) error {
	opts, err := cfg.baseOpts("roundtrip-admin")
	if err != nil {
		return err
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("create admin client: %w", err)
	}
	defer client.Close()
	adm := kadm.NewClient(client)

	for _, spec := range specs {
		if err := createTopic(ctx, adm, spec, log); err != nil {
			return err
		}
	}
	return nil
}

func createTopic(ctx context.Context, adm *kadm.Client, spec TopicSpec, log *zap.Logger) error {
	var lastErr error
	for attempt := 1; attempt <= provisionAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = createTopicOnce(ctx, adm, spec)
		if lastErr == nil {
			return nil
		}
		if !kerr.IsRetriable(lastErr) {
			return lastErr
		}
		if attempt < provisionAttempts {
			log.Info("topic creation failed, retrying",
				zap.String("topic", spec.Name),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-time.After(provisionBaseDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("create topic %s: %w", spec.Name, lastErr)
}

func createTopicOnce(ctx context.Context, adm *kadm.Client, spec TopicSpec) error {
	resps, err := adm.CreateTopics(ctx, spec.Partitions, spec.ReplicationFactor, nil, spec.Name)
	if err != nil {
		return err
	}
	for _, resp := range resps.Sorted() {
		if resp.Err == nil || errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			continue
		}
		return resp.Err
	}
	return nil
}

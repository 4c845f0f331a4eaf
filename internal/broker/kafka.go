package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ConsumerMode selects which Kafka consumer variant backs the Consumer
// capability.
type ConsumerMode string

const (
	// ModeAssign consumes the active partitions by direct assignment.
	ModeAssign ConsumerMode = "assign"
	// ModeGroup consumes through a consumer group with shared assignment.
	ModeGroup ConsumerMode = "group"
)

// ClientConfig carries the connection settings for one client role. Overrides
// is the merge of common and role-specific client properties.
type ClientConfig struct {
	BootstrapServers []string
	ClientID         string
	Overrides        map[string]string
}

func (c ClientConfig) baseOpts(defaultID string) ([]kgo.Opt, error) {
	if len(c.BootstrapServers) == 0 {
		return nil, fmt.Errorf("at least one bootstrap server is required")
	}
	id := c.ClientID
	if id == "" {
		id = defaultID
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(c.BootstrapServers...),
		kgo.ClientID(id),
	}
	return appendOverrideOpts(opts, c.Overrides)
}

// appendOverrideOpts translates Kafka-style client properties into kgo
// options. Unknown keys are rejected rather than silently dropped.
func appendOverrideOpts(opts []kgo.Opt, overrides map[string]string) ([]kgo.Opt, error) {
	for key, value := range overrides {
		switch key {
		case "linger.ms":
			ms, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("override %s: %w", key, err)
			}
			opts = append(opts, kgo.ProducerLinger(time.Duration(ms)*time.Millisecond))
		case "batch.max.bytes":
			n, err := strconv.ParseInt(value, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("override %s: %w", key, err)
			}
			opts = append(opts, kgo.ProducerBatchMaxBytes(int32(n)))
		case "max.buffered.records":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("override %s: %w", key, err)
			}
			opts = append(opts, kgo.MaxBufferedRecords(n))
		case "fetch.max.bytes":
			n, err := strconv.ParseInt(value, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("override %s: %w", key, err)
			}
			opts = append(opts, kgo.FetchMaxBytes(int32(n)))
		case "session.timeout.ms":
			ms, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("override %s: %w", key, err)
			}
			opts = append(opts, kgo.SessionTimeout(time.Duration(ms)*time.Millisecond))
		default:
			return nil, fmt.Errorf("unsupported client override %q", key)
		}
	}
	return opts, nil
}

// KafkaProducer issues asynchronous sends through a franz-go client with
// acks=all and manual partitioning, so each record lands on the exact
// partition the workload assigned it.
type KafkaProducer struct {
	client *kgo.Client
}

func NewKafkaProducer(cfg ClientConfig) (*KafkaProducer, error) {
	opts, err := cfg.baseOpts("roundtrip-producer")
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
	)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create producer client: %w", err)
	}
	return &KafkaProducer{client: client}, nil
}

func (p *KafkaProducer) Send(ctx context.Context, rec Record, done func(err error)) {
	p.client.Produce(ctx, &kgo.Record{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Key:       rec.Key,
		Value:     rec.Value,
	}, func(_ *kgo.Record, err error) {
		done(err)
	})
}

func (p *KafkaProducer) Close() {
	p.client.Close()
}

// kafkaConsumer adapts a franz-go client, in either assignment mode, to the
// Consumer capability.
type kafkaConsumer struct {
	client *kgo.Client
}

// NewAssignConsumer consumes the given partitions by direct assignment,
// starting from the earliest offset.
func NewAssignConsumer(cfg ClientConfig, partitions []TopicPartition) (Consumer, error) {
	if len(partitions) == 0 {
		return nil, fmt.Errorf("at least one partition is required")
	}
	assignments := make(map[string]map[int32]kgo.Offset)
	for _, tp := range partitions {
		if assignments[tp.Topic] == nil {
			assignments[tp.Topic] = make(map[int32]kgo.Offset)
		}
		assignments[tp.Topic][tp.Partition] = kgo.NewOffset().AtStart()
	}

	opts, err := cfg.baseOpts("roundtrip-consumer")
	if err != nil {
		return nil, err
	}
	opts = append(opts, kgo.ConsumePartitions(assignments))
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create assign consumer client: %w", err)
	}
	return &kafkaConsumer{client: client}, nil
}

// NewGroupConsumer consumes the topics covering the given partitions through
// a consumer group, letting the broker share assignments.
func NewGroupConsumer(cfg ClientConfig, groupID string, partitions []TopicPartition) (Consumer, error) {
	if len(partitions) == 0 {
		return nil, fmt.Errorf("at least one partition is required")
	}
	if groupID == "" {
		return nil, fmt.Errorf("consumer group id is required in group mode")
	}
	seen := make(map[string]bool)
	var topics []string
	for _, tp := range partitions {
		if !seen[tp.Topic] {
			seen[tp.Topic] = true
			topics = append(topics, tp.Topic)
		}
	}

	opts, err := cfg.baseOpts("roundtrip-consumer")
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create group consumer client: %w", err)
	}
	return &kafkaConsumer{client: client}, nil
}

// Poll fetches whatever is available within timeout. Timeout expiry is not an
// error: it returns an empty batch so the caller stays responsive to
// diagnostics and shutdown.
func (c *kafkaConsumer) Poll(ctx context.Context, timeout time.Duration) ([]Record, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetches := c.client.PollFetches(pollCtx)
	if fetches.IsClientClosed() {
		return nil, ErrClosed
	}

	var records []Record
	fetches.EachRecord(func(r *kgo.Record) {
		records = append(records, Record{
			Topic:     r.Topic,
			Partition: r.Partition,
			Key:       r.Key,
			Value:     r.Value,
		})
	})
	for _, fe := range fetches.Errors() {
		if IsTransient(fe.Err) {
			continue
		}
		return records, fmt.Errorf("fetch %s[%d]: %w", fe.Topic, fe.Partition, fe.Err)
	}
	return records, nil
}

func (c *kafkaConsumer) Close() {
	c.client.Close()
}

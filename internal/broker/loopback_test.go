package broker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sgoran/roundtrip/internal/broker"
)

func TestLoopbackRoundTrip(t *testing.T) {
	lb := broker.NewLoopback(8)
	defer lb.Close()

	acked := make(chan error, 1)
	lb.Send(context.Background(), broker.Record{Topic: "t", Key: []byte("k"), Value: []byte("v")}, func(err error) {
		acked <- err
	})

	select {
	case err := <-acked:
		if err != nil {
			t.Fatalf("expected successful ack, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("send was never acked")
	}

	records, err := lb.Poll(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(records) != 1 || string(records[0].Key) != "k" {
		t.Fatalf("expected the sent record back, got %v", records)
	}
}

func TestLoopbackPollTimeoutIsNotAnError(t *testing.T) {
	lb := broker.NewLoopback(1)
	defer lb.Close()

	records, err := lb.Poll(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("expected empty poll, got error %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestLoopbackFailureInjection(t *testing.T) {
	lb := broker.NewLoopback(1)
	defer lb.Close()

	injected := errors.New("injected send failure")
	lb.SetFailSends(func(broker.Record) error { return injected })

	acked := make(chan error, 1)
	lb.Send(context.Background(), broker.Record{Topic: "t"}, func(err error) { acked <- err })

	select {
	case err := <-acked:
		if !errors.Is(err, injected) {
			t.Fatalf("expected injected failure, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("failed send was never reported")
	}
}

func TestLoopbackPollAfterClose(t *testing.T) {
	lb := broker.NewLoopback(1)
	lb.Close()
	lb.Close() // double close must be safe

	_, err := lb.Poll(context.Background(), 10*time.Millisecond)
	if !errors.Is(err, broker.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	if !broker.IsTransient(context.DeadlineExceeded) {
		t.Fatal("deadline expiry should be transient")
	}
	if !broker.IsTransient(context.Canceled) {
		t.Fatal("cooperative cancellation should be transient")
	}
	if broker.IsTransient(errors.New("disk on fire")) {
		t.Fatal("unclassified errors must not be transient")
	}
	if broker.IsTransient(nil) {
		t.Fatal("nil is not transient")
	}
}

func TestExpandPartitions(t *testing.T) {
	partitions := broker.ExpandPartitions([]broker.TopicSpec{
		{Name: "a", Partitions: 2, ReplicationFactor: 1},
		{Name: "b", Partitions: 1, ReplicationFactor: 3},
	})
	want := []broker.TopicPartition{
		{Topic: "a", Partition: 0},
		{Topic: "a", Partition: 1},
		{Topic: "b", Partition: 0},
	}
	if len(partitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, partitions)
	}
	for i := range want {
		if partitions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, partitions)
		}
	}
}

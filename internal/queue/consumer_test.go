package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestConsumerProcessesAndAcknowledges(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, "normal.sms")
	publishItems(t, q, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled atomic.Int32
	handler := func(ctx context.Context, payload []byte) error {
		if handled.Add(1) == 3 {
			cancel()
		}
		return nil
	}

	consumer, err := NewConsumer(q, handler, 3, 10*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}

	if err := consumer.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := handled.Load(); got != 3 {
		t.Fatalf("handled %d items, want 3", got)
	}

	inflight, err := q.InFlight(context.Background())
	if err != nil {
		t.Fatalf("InFlight() error = %v", err)
	}
	if inflight != 0 {
		t.Fatalf("in-flight lists = %d, want 0 after acknowledge", inflight)
	}
}

func TestConsumerLeavesFailedBatchInFlight(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, "normal.email")
	publishItems(t, q, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	handler := func(ctx context.Context, payload []byte) error {
		if calls.Add(1) == 2 {
			cancel()
			return errors.New("boom")
		}
		return nil
	}

	consumer, err := NewConsumer(q, handler, 2, 10*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}

	if err := consumer.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	inflight, err := q.InFlight(context.Background())
	if err != nil {
		t.Fatalf("InFlight() error = %v", err)
	}
	if inflight != 1 {
		t.Fatalf("in-flight lists = %d, want 1 (failed batch not acknowledged)", inflight)
	}
}

func TestNewConsumerValidation(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, "normal.letter")

	if _, err := NewConsumer(nil, func(context.Context, []byte) error { return nil }, 1, time.Second, nil); err == nil {
		t.Fatal("nil queue should fail")
	}
	if _, err := NewConsumer(q, nil, 1, time.Second, nil); err == nil {
		t.Fatal("nil handler should fail")
	}
}

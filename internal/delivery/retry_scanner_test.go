package delivery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/notifygov/delivery-engine/internal/domain"
	"github.com/notifygov/delivery-engine/internal/queue"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func redisLanes(t *testing.T) *queue.Lanes {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	lanes, err := queue.NewLanes(rdb, queue.AllLanes())
	if err != nil {
		t.Fatalf("NewLanes() error = %v", err)
	}
	return lanes
}

func TestRetryScannerRepublishesDueRetries(t *testing.T) {
	t.Parallel()

	due := domain.Notification{
		ID:       "n-retry-1",
		Type:     domain.TypeSMS,
		Priority: domain.PriorityHigh,
	}

	clearedIDs := make([]string, 0, 1)
	repo := &fakeNotificationRepo{
		getDueForRetryFn: func(ctx context.Context, limit int) ([]domain.Notification, error) {
			return []domain.Notification{due}, nil
		},
		clearNextRetryAtFn: func(ctx context.Context, id string) error {
			clearedIDs = append(clearedIDs, id)
			return nil
		},
	}

	lanes := redisLanes(t)
	scanner, err := NewRetryScanner(repo, lanes, time.Minute, 10, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRetryScanner() error = %v", err)
	}

	if err := scanner.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}

	laneQueue, err := lanes.Get(queue.DeliveryLane(domain.PriorityHigh, domain.TypeSMS))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_, items, err := laneQueue.Poll(context.Background(), 10)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}

	var msg queue.DeliveryMessage
	if err := json.Unmarshal(items[0], &msg); err != nil {
		t.Fatalf("unmarshal republished message: %v", err)
	}
	if msg.NotificationID != "n-retry-1" {
		t.Fatalf("notification id = %q, want n-retry-1", msg.NotificationID)
	}

	if len(clearedIDs) != 1 || clearedIDs[0] != "n-retry-1" {
		t.Fatalf("cleared ids = %v, want [n-retry-1]", clearedIDs)
	}
}

func TestRetryScannerKeepsRetryTimestampOnPublishFailure(t *testing.T) {
	t.Parallel()

	due := domain.Notification{
		ID:       "n-retry-2",
		Type:     "fax",
		Priority: domain.PriorityNormal,
	}

	repo := &fakeNotificationRepo{
		getDueForRetryFn: func(ctx context.Context, limit int) ([]domain.Notification, error) {
			return []domain.Notification{due}, nil
		},
		clearNextRetryAtFn: func(ctx context.Context, id string) error {
			t.Fatal("ClearNextRetryAt should not be called when publish fails")
			return nil
		},
	}

	// The bogus notification type maps to an unregistered lane, so publish fails.
	scanner, err := NewRetryScanner(repo, redisLanes(t), time.Minute, 10, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRetryScanner() error = %v", err)
	}

	if err := scanner.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}
}

func TestRetryScannerConstructorValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRetryScanner(nil, redisLanes(t), time.Minute, 10, zap.NewNop()); err == nil {
		t.Fatal("expected error for nil repository")
	}
	if _, err := NewRetryScanner(&fakeNotificationRepo{}, nil, time.Minute, 10, zap.NewNop()); err == nil {
		t.Fatal("expected error for nil lanes")
	}
}

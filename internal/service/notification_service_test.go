package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/notifygov/delivery-engine/internal/domain"
	"github.com/notifygov/delivery-engine/internal/queue"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func testLanes(t *testing.T) (*queue.Lanes, *miniredis.Miniredis) {
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
	return lanes, mr
}

func validNotification() *domain.Notification {
	return &domain.Notification{
		ServiceID:  "svc-1",
		TemplateID: "tpl-1",
		Type:       domain.TypeSMS,
		Priority:   domain.PriorityNormal,
		Recipient:  "+16135550123",
		Content:    "hello",
	}
}

func TestCreatePersistsAndPublishes(t *testing.T) {
	t.Parallel()

	lanes, _ := testLanes(t)

	var created *domain.Notification
	repo := &fakeNotificationRepo{
		createFn: func(ctx context.Context, n *domain.Notification) error {
			created = n
			return nil
		},
	}

	svc, err := NewNotificationService(repo, lanes, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}

	n := validNotification()
	got, err := svc.Create(context.Background(), n)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if created == nil {
		t.Fatal("notification was not persisted")
	}
	if got.ID == "" {
		t.Fatal("id was not assigned")
	}
	if got.Status != domain.StatusCreated {
		t.Fatalf("status = %q, want created", got.Status)
	}
	if got.MaxRetries != 5 {
		t.Fatalf("max retries = %d, want 5", got.MaxRetries)
	}

	laneQueue, err := lanes.Get(queue.DeliveryLane(domain.PriorityNormal, domain.TypeSMS))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_, items, err := laneQueue.Poll(context.Background(), 10)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("published items = %d, want 1", len(items))
	}

	var msg queue.DeliveryMessage
	if err := json.Unmarshal(items[0], &msg); err != nil {
		t.Fatalf("unmarshal delivery message: %v", err)
	}
	if msg.NotificationID != got.ID || msg.Type != domain.TypeSMS || msg.Priority != domain.PriorityNormal {
		t.Fatalf("delivery message = %+v", msg)
	}
}

func TestCreateResolvesIdempotencyConflict(t *testing.T) {
	t.Parallel()

	lanes, _ := testLanes(t)

	existing := validNotification()
	existing.ID = "existing-id"
	existing.Status = domain.StatusSending

	repo := &fakeNotificationRepo{
		createFn: func(ctx context.Context, n *domain.Notification) error {
			return errors.New(`duplicate key value violates unique constraint "idx_notifications_idempotency_key"`)
		},
		getByIdempotencyKeyFn: func(ctx context.Context, idempotencyKey string) (*domain.Notification, error) {
			if idempotencyKey != "idem-1" {
				t.Errorf("idempotency key = %q, want idem-1", idempotencyKey)
			}
			return existing, nil
		},
	}

	svc, err := NewNotificationService(repo, lanes, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}

	key := "idem-1"
	n := validNotification()
	n.IdempotencyKey = &key

	got, err := svc.Create(context.Background(), n)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got.ID != "existing-id" {
		t.Fatalf("id = %q, want the existing notification", got.ID)
	}

	laneQueue, err := lanes.Get(queue.DeliveryLane(domain.PriorityNormal, domain.TypeSMS))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	depth, err := laneQueue.Depth(context.Background())
	if err != nil {
		t.Fatalf("Depth() error = %v", err)
	}
	if depth != 0 {
		t.Fatalf("depth = %d, a duplicate must not be re-published", depth)
	}
}

func TestCreateSchedulesRetryWhenPublishFails(t *testing.T) {
	t.Parallel()

	lanes, mr := testLanes(t)
	mr.Close()

	var retryID string
	repo := &fakeNotificationRepo{
		scheduleRetryFn: func(ctx context.Context, id string, nextRetryAt time.Time) error {
			retryID = id
			return nil
		},
	}

	svc, err := NewNotificationService(repo, lanes, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}

	got, err := svc.Create(context.Background(), validNotification())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if retryID != got.ID {
		t.Fatalf("retry scheduled for %q, want %q", retryID, got.ID)
	}
}

func TestCreateRejectsInvalidNotification(t *testing.T) {
	t.Parallel()

	lanes, _ := testLanes(t)
	svc, err := NewNotificationService(&fakeNotificationRepo{}, lanes, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}

	n := validNotification()
	n.Recipient = "  "

	if _, err := svc.Create(context.Background(), n); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Create() error = %v, want validation error", err)
	}
}

func TestGetByIDRequiresID(t *testing.T) {
	t.Parallel()

	lanes, _ := testLanes(t)
	svc, err := NewNotificationService(&fakeNotificationRepo{}, lanes, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}

	if _, err := svc.GetByID(context.Background(), "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("GetByID() error = %v, want validation error", err)
	}
}

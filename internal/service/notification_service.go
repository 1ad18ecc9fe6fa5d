package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notifygov/delivery-engine/internal/domain"
	"github.com/notifygov/delivery-engine/internal/queue"
	"github.com/notifygov/delivery-engine/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultMaxRetries = 5

// NotificationService is the intake side of the pipeline: it persists a
// notification and publishes its reference onto the matching delivery lane.
type NotificationService struct {
	notifications repository.NotificationRepository
	lanes         *queue.Lanes
	logger        *zap.Logger
	now           func() time.Time
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	lanes *queue.Lanes,
	logger *zap.Logger,
) (*NotificationService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if lanes == nil {
		return nil, fmt.Errorf("lanes are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		lanes:         lanes,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *NotificationService) Create(ctx context.Context, notification *domain.Notification) (*domain.Notification, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := prepareNotificationForCreate(notification); err != nil {
		return nil, err
	}

	if err := s.notifications.Create(ctx, notification); err != nil {
		existing, resolved, resolveErr := s.resolveIdempotencyConflict(ctx, err, notification.IdempotencyKey)
		if resolveErr != nil {
			return nil, resolveErr
		}
		if resolved {
			return existing, nil
		}
		return nil, err
	}

	msg := queue.DeliveryMessage{
		NotificationID: notification.ID,
		Type:           notification.Type,
		Priority:       notification.Priority,
	}
	lane := queue.DeliveryLane(notification.Priority, notification.Type)
	if err := s.lanes.Publish(ctx, lane, msg); err != nil {
		// The row is already durable. Hand it to the retry scanner instead
		// of failing the intake.
		s.logger.Error("failed to publish notification, scheduling retry",
			zap.String("notificationId", notification.ID),
			zap.String("lane", lane),
			zap.Error(err),
		)
		if retryErr := s.notifications.ScheduleRetry(ctx, notification.ID, s.now().UTC()); retryErr != nil {
			return nil, fmt.Errorf("failed to publish notification: %w (failed to schedule retry: %v)", err, retryErr)
		}
	}

	return notification, nil
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.GetByID(ctx, strings.TrimSpace(id))
}

func prepareNotificationForCreate(n *domain.Notification) error {
	if n == nil {
		return fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}

	n.Recipient = strings.TrimSpace(n.Recipient)
	n.Content = strings.TrimSpace(n.Content)

	n.ID = strings.TrimSpace(n.ID)
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	n.IdempotencyKey = normalizeOptionalString(n.IdempotencyKey)
	n.ClientReference = normalizeOptionalString(n.ClientReference)
	n.Subject = normalizeOptionalString(n.Subject)

	n.Status = domain.StatusCreated
	n.AttemptCount = 0
	if n.MaxRetries <= 0 {
		n.MaxRetries = defaultMaxRetries
	}
	n.SentBy = nil
	n.ProviderReference = nil
	n.NextRetryAt = nil

	return n.Validate()
}

func normalizeOptionalString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func (s *NotificationService) resolveIdempotencyConflict(
	ctx context.Context,
	createErr error,
	idempotencyKey *string,
) (*domain.Notification, bool, error) {
	if idempotencyKey == nil || strings.TrimSpace(*idempotencyKey) == "" {
		return nil, false, nil
	}
	if !isUniqueViolationError(createErr) {
		return nil, false, nil
	}

	existing, err := s.notifications.GetByIdempotencyKey(ctx, strings.TrimSpace(*idempotencyKey))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing notification after idempotency conflict: %w", err)
	}
	s.logger.Info("idempotency conflict resolved",
		zap.String("existingId", existing.ID),
		zap.String("idempotencyKey", *idempotencyKey),
	)
	return existing, true, nil
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

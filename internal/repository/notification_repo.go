package repository

import (
	"context"
	"errors"
	"time"

	"github.com/notifygov/delivery-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.Notification, error)
	GetByProviderReference(ctx context.Context, reference string) (*domain.Notification, error)
	LockForSending(ctx context.Context, id string) (*domain.Notification, error)
	MarkDispatched(ctx context.Context, id string, status domain.Status, provider domain.Provider, providerReference string, sentAt time.Time) error
	ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time) error
	MarkFailed(ctx context.Context, id string, status domain.Status, reason domain.StatusReason, providerResponse *string) error
	TransitionFromReceipt(ctx context.Context, id string, expected []domain.Status, to domain.Status, providerResponse string, completedAt time.Time) (bool, error)
	GetDueForRetry(ctx context.Context, limit int) ([]domain.Notification, error)
	ClearNextRetryAt(ctx context.Context, id string) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) GetByProviderReference(ctx context.Context, reference string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).
		Where("provider_reference = ?", reference).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

// LockForSending claims a notification for delivery. Returns nil without
// error when the notification is already sending or in a terminal state, so
// duplicate queue deliveries become no-ops.
func (r *GormNotificationRepo) LockForSending(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if model.Status.IsTerminal() || model.Status == domain.StatusSending || model.Status == domain.StatusSent {
		return nil, nil
	}

	model.Status = domain.StatusSending
	if err := r.db.WithContext(ctx).
		Model(&model).
		Update("status", domain.StatusSending).Error; err != nil {
		return nil, err
	}

	return notificationModelToDomain(&model), nil
}

// MarkDispatched records a successful provider handoff. Status is sent for
// push-style providers and stays sending for providers that confirm through an
// async receipt.
func (r *GormNotificationRepo) MarkDispatched(ctx context.Context, id string, status domain.Status, provider domain.Provider, providerReference string, sentAt time.Time) error {
	updates := map[string]any{
		"status":  status,
		"sent_by": provider,
		"sent_at": sentAt,
	}
	if providerReference != "" {
		updates["provider_reference"] = providerReference
	}

	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ScheduleRetry puts a notification back into created with a retry deadline
// and bumps the attempt counter. The retry scanner republishes it once due.
func (r *GormNotificationRepo) ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.StatusCreated,
			"next_retry_at": nextRetryAt,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) MarkFailed(ctx context.Context, id string, status domain.Status, reason domain.StatusReason, providerResponse *string) error {
	updates := map[string]any{
		"status":        status,
		"status_reason": reason.String(),
		"completed_at":  time.Now().UTC(),
	}
	if providerResponse != nil {
		updates["provider_response"] = *providerResponse
	}

	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TransitionFromReceipt applies a callback-driven status change only while
// the notification still sits in one of the expected pre-callback statuses.
// The conditional WHERE keeps stale or duplicate receipts from ever
// overwriting a terminal status. Returns false when no row changed.
func (r *GormNotificationRepo) TransitionFromReceipt(ctx context.Context, id string, expected []domain.Status, to domain.Status, providerResponse string, completedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status IN ?", id, expected).
		Updates(map[string]any{
			"status":            to,
			"provider_response": providerResponse,
			"completed_at":      completedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormNotificationRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.Notification, error) {
	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", domain.StatusCreated, time.Now()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}

func (r *GormNotificationRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("next_retry_at", nil).Error
}

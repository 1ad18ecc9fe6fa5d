package service

import (
	"context"
	"time"

	"github.com/notifygov/delivery-engine/internal/domain"
	"github.com/notifygov/delivery-engine/internal/repository"
)

type fakeNotificationRepo struct {
	createFn                func(ctx context.Context, n *domain.Notification) error
	getByIDFn               func(ctx context.Context, id string) (*domain.Notification, error)
	getByIdempotencyKeyFn   func(ctx context.Context, idempotencyKey string) (*domain.Notification, error)
	getByProviderRefFn      func(ctx context.Context, reference string) (*domain.Notification, error)
	lockForSendingFn        func(ctx context.Context, id string) (*domain.Notification, error)
	markDispatchedFn        func(ctx context.Context, id string, status domain.Status, provider domain.Provider, providerReference string, sentAt time.Time) error
	scheduleRetryFn         func(ctx context.Context, id string, nextRetryAt time.Time) error
	markFailedFn            func(ctx context.Context, id string, status domain.Status, reason domain.StatusReason, providerResponse *string) error
	transitionFromReceiptFn func(ctx context.Context, id string, expected []domain.Status, to domain.Status, providerResponse string, completedAt time.Time) (bool, error)
	getDueForRetryFn        func(ctx context.Context, limit int) ([]domain.Notification, error)
	clearNextRetryAtFn      func(ctx context.Context, id string) error
}

var _ repository.NotificationRepository = (*fakeNotificationRepo)(nil)

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.Notification, error) {
	if f.getByIdempotencyKeyFn != nil {
		return f.getByIdempotencyKeyFn(ctx, idempotencyKey)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) GetByProviderReference(ctx context.Context, reference string) (*domain.Notification, error) {
	if f.getByProviderRefFn != nil {
		return f.getByProviderRefFn(ctx, reference)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) LockForSending(ctx context.Context, id string) (*domain.Notification, error) {
	if f.lockForSendingFn != nil {
		return f.lockForSendingFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) MarkDispatched(ctx context.Context, id string, status domain.Status, provider domain.Provider, providerReference string, sentAt time.Time) error {
	if f.markDispatchedFn != nil {
		return f.markDispatchedFn(ctx, id, status, provider, providerReference, sentAt)
	}
	return nil
}

func (f *fakeNotificationRepo) ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time) error {
	if f.scheduleRetryFn != nil {
		return f.scheduleRetryFn(ctx, id, nextRetryAt)
	}
	return nil
}

func (f *fakeNotificationRepo) MarkFailed(ctx context.Context, id string, status domain.Status, reason domain.StatusReason, providerResponse *string) error {
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, id, status, reason, providerResponse)
	}
	return nil
}

func (f *fakeNotificationRepo) TransitionFromReceipt(ctx context.Context, id string, expected []domain.Status, to domain.Status, providerResponse string, completedAt time.Time) (bool, error) {
	if f.transitionFromReceiptFn != nil {
		return f.transitionFromReceiptFn(ctx, id, expected, to, providerResponse, completedAt)
	}
	return false, nil
}

func (f *fakeNotificationRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.Notification, error) {
	if f.getDueForRetryFn != nil {
		return f.getDueForRetryFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	if f.clearNextRetryAtFn != nil {
		return f.clearNextRetryAtFn(ctx, id)
	}
	return nil
}

type fakeCallbackRepo struct {
	getForServiceFn func(ctx context.Context, serviceID string, callbackType domain.ServiceCallbackType) (*domain.ServiceCallback, error)
	upsertFn        func(ctx context.Context, callback *domain.ServiceCallback) error
}

var _ repository.ServiceCallbackRepository = (*fakeCallbackRepo)(nil)

func (f *fakeCallbackRepo) GetForService(ctx context.Context, serviceID string, callbackType domain.ServiceCallbackType) (*domain.ServiceCallback, error) {
	if f.getForServiceFn != nil {
		return f.getForServiceFn(ctx, serviceID, callbackType)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeCallbackRepo) Upsert(ctx context.Context, callback *domain.ServiceCallback) error {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, callback)
	}
	return nil
}

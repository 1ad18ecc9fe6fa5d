package repository

import (
	"context"
	"errors"

	"github.com/notifygov/delivery-engine/internal/domain"
	"gorm.io/gorm"
)

type ServiceCallbackRepository interface {
	// GetForService returns the registered callback of the given type for a
	// service, or domain.ErrNotFound when the service registered none.
	GetForService(ctx context.Context, serviceID string, callbackType domain.ServiceCallbackType) (*domain.ServiceCallback, error)
	Upsert(ctx context.Context, callback *domain.ServiceCallback) error
}

type ComplaintRepository interface {
	Create(ctx context.Context, complaint *domain.Complaint) error
}

type GormServiceCallbackRepo struct {
	db *gorm.DB
}

func NewGormServiceCallbackRepo(db *gorm.DB) *GormServiceCallbackRepo {
	return &GormServiceCallbackRepo{db: db}
}

func (r *GormServiceCallbackRepo) GetForService(ctx context.Context, serviceID string, callbackType domain.ServiceCallbackType) (*domain.ServiceCallback, error) {
	var model ServiceCallbackModel
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND type = ?", serviceID, callbackType).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return callbackModelToDomain(&model), nil
}

func (r *GormServiceCallbackRepo) Upsert(ctx context.Context, callback *domain.ServiceCallback) error {
	model := callbackModelFromDomain(callback)
	return r.db.WithContext(ctx).Save(model).Error
}

type GormComplaintRepo struct {
	db *gorm.DB
}

func NewGormComplaintRepo(db *gorm.DB) *GormComplaintRepo {
	return &GormComplaintRepo{db: db}
}

func (r *GormComplaintRepo) Create(ctx context.Context, complaint *domain.Complaint) error {
	model := complaintModelFromDomain(complaint)
	return r.db.WithContext(ctx).Create(model).Error
}

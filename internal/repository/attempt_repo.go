package repository

import (
	"context"

	"github.com/notifygov/delivery-engine/internal/domain"
	"gorm.io/gorm"
)

type AttemptRepository interface {
	Create(ctx context.Context, attempt *domain.NotificationAttempt) error
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Create(ctx context.Context, attempt *domain.NotificationAttempt) error {
	model := attemptModelFromDomain(attempt)
	return r.db.WithContext(ctx).Create(model).Error
}

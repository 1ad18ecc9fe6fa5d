package repository

import (
	"time"

	"github.com/notifygov/delivery-engine/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID                string                  `gorm:"type:uuid;primaryKey"`
	ServiceID         string                  `gorm:"type:uuid;not null"`
	TemplateID        string                  `gorm:"type:uuid;not null"`
	ClientReference   *string                 `gorm:"type:varchar(255)"`
	IdempotencyKey    *string                 `gorm:"type:varchar(255)"`
	Type              domain.NotificationType `gorm:"type:varchar(10);not null"`
	Priority          domain.Priority         `gorm:"type:varchar(10);not null"`
	Recipient         string                  `gorm:"type:varchar(255);not null"`
	Subject           *string                 `gorm:"type:varchar(255)"`
	Content           string                  `gorm:"type:text;not null"`
	Status            domain.Status           `gorm:"type:varchar(25);not null"`
	StatusReason      *string                 `gorm:"type:varchar(50)"`
	SentBy            *domain.Provider        `gorm:"type:varchar(20)"`
	ProviderReference *string                 `gorm:"type:varchar(255)"`
	ProviderResponse  *string                 `gorm:"type:text"`
	AttemptCount      int                     `gorm:"not null;default:0"`
	MaxRetries        int                     `gorm:"not null;default:5"`
	NextRetryAt       *time.Time
	SentAt            *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// NotificationAttemptModel is the persistence model for notification_attempts.
type NotificationAttemptModel struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	NotificationID string  `gorm:"type:uuid;not null"`
	AttemptNumber  int     `gorm:"not null"`
	Provider       *string `gorm:"type:varchar(20)"`
	StatusCode     *int    `gorm:"type:int"`
	ResponseBody   *string `gorm:"type:text"`
	Error          *string `gorm:"type:text"`
	CreatedAt      time.Time
}

func (NotificationAttemptModel) TableName() string {
	return "notification_attempts"
}

// ServiceCallbackModel is the persistence model for service_callbacks.
type ServiceCallbackModel struct {
	ID          string                     `gorm:"type:uuid;primaryKey"`
	ServiceID   string                     `gorm:"type:uuid;not null"`
	URL         string                     `gorm:"type:varchar(500);not null"`
	BearerToken string                     `gorm:"type:text;not null"`
	Type        domain.ServiceCallbackType `gorm:"type:varchar(20);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ServiceCallbackModel) TableName() string {
	return "service_callbacks"
}

// ComplaintModel is the persistence model for complaints.
type ComplaintModel struct {
	ID             string               `gorm:"type:uuid;primaryKey"`
	NotificationID string               `gorm:"type:uuid;not null"`
	ServiceID      string               `gorm:"type:uuid;not null"`
	FeedbackID     *string              `gorm:"type:varchar(255)"`
	ComplaintType  domain.ComplaintType `gorm:"type:varchar(50)"`
	ComplaintDate  time.Time            `gorm:"not null"`
	CreatedAt      time.Time
}

func (ComplaintModel) TableName() string {
	return "complaints"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:                n.ID,
		ServiceID:         n.ServiceID,
		TemplateID:        n.TemplateID,
		ClientReference:   n.ClientReference,
		IdempotencyKey:    n.IdempotencyKey,
		Type:              n.Type,
		Priority:          n.Priority,
		Recipient:         n.Recipient,
		Subject:           n.Subject,
		Content:           n.Content,
		Status:            n.Status,
		StatusReason:      n.StatusReason,
		SentBy:            n.SentBy,
		ProviderReference: n.ProviderReference,
		ProviderResponse:  n.ProviderResponse,
		AttemptCount:      n.AttemptCount,
		MaxRetries:        n.MaxRetries,
		NextRetryAt:       n.NextRetryAt,
		SentAt:            n.SentAt,
		CompletedAt:       n.CompletedAt,
		CreatedAt:         n.CreatedAt,
		UpdatedAt:         n.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:                m.ID,
		ServiceID:         m.ServiceID,
		TemplateID:        m.TemplateID,
		ClientReference:   m.ClientReference,
		IdempotencyKey:    m.IdempotencyKey,
		Type:              m.Type,
		Priority:          m.Priority,
		Recipient:         m.Recipient,
		Subject:           m.Subject,
		Content:           m.Content,
		Status:            m.Status,
		StatusReason:      m.StatusReason,
		SentBy:            m.SentBy,
		ProviderReference: m.ProviderReference,
		ProviderResponse:  m.ProviderResponse,
		AttemptCount:      m.AttemptCount,
		MaxRetries:        m.MaxRetries,
		NextRetryAt:       m.NextRetryAt,
		SentAt:            m.SentAt,
		CompletedAt:       m.CompletedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.NotificationAttempt) *NotificationAttemptModel {
	if a == nil {
		return nil
	}

	return &NotificationAttemptModel{
		ID:             a.ID,
		NotificationID: a.NotificationID,
		AttemptNumber:  a.AttemptNumber,
		Provider:       a.Provider,
		StatusCode:     a.StatusCode,
		ResponseBody:   a.ResponseBody,
		Error:          a.Error,
		CreatedAt:      a.CreatedAt,
	}
}

func callbackModelToDomain(m *ServiceCallbackModel) *domain.ServiceCallback {
	if m == nil {
		return nil
	}

	return &domain.ServiceCallback{
		ID:          m.ID,
		ServiceID:   m.ServiceID,
		URL:         m.URL,
		BearerToken: m.BearerToken,
		Type:        m.Type,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func callbackModelFromDomain(c *domain.ServiceCallback) *ServiceCallbackModel {
	if c == nil {
		return nil
	}

	return &ServiceCallbackModel{
		ID:          c.ID,
		ServiceID:   c.ServiceID,
		URL:         c.URL,
		BearerToken: c.BearerToken,
		Type:        c.Type,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func complaintModelFromDomain(c *domain.Complaint) *ComplaintModel {
	if c == nil {
		return nil
	}

	return &ComplaintModel{
		ID:             c.ID,
		NotificationID: c.NotificationID,
		ServiceID:      c.ServiceID,
		FeedbackID:     c.FeedbackID,
		ComplaintType:  c.ComplaintType,
		ComplaintDate:  c.ComplaintDate,
		CreatedAt:      c.CreatedAt,
	}
}

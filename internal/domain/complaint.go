package domain

import "time"

// ComplaintType mirrors the provider's complaint feedback classification.
type ComplaintType string

// Complaint records a recipient complaint reported by an email provider.
type Complaint struct {
	ID             string        `gorm:"type:uuid;primaryKey"`
	NotificationID string        `gorm:"type:uuid;not null"`
	ServiceID      string        `gorm:"type:uuid;not null"`
	FeedbackID     *string       `gorm:"type:varchar(255)"`
	ComplaintType  ComplaintType `gorm:"type:varchar(50)"`
	ComplaintDate  time.Time     `gorm:"not null"`
	CreatedAt      time.Time
}

// ServiceCallbackType selects which events a registered callback receives.
type ServiceCallbackType string

const (
	CallbackTypeDeliveryStatus ServiceCallbackType = "delivery-status"
	CallbackTypeComplaint      ServiceCallbackType = "complaint"
)

func (t ServiceCallbackType) IsValid() bool {
	switch t {
	case CallbackTypeDeliveryStatus, CallbackTypeComplaint:
		return true
	}
	return false
}

// ServiceCallback is a service-registered HTTPS endpoint for status push.
// BearerToken is stored signed and must be verified before use.
type ServiceCallback struct {
	ID          string              `gorm:"type:uuid;primaryKey"`
	ServiceID   string              `gorm:"type:uuid;not null"`
	URL         string              `gorm:"type:varchar(500);not null"`
	BearerToken string              `gorm:"type:text;not null"`
	Type        ServiceCallbackType `gorm:"type:varchar(20);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

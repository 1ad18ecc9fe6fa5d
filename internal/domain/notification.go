package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusCreated             Status = "created"
	StatusSending             Status = "sending"
	StatusSent                Status = "sent"
	StatusDelivered           Status = "delivered"
	StatusPending             Status = "pending"
	StatusPendingVirusCheck   Status = "pending-virus-check"
	StatusPreferencesDeclined Status = "preferences-declined"
	StatusTemporaryFailure    Status = "temporary-failure"
	StatusPermanentFailure    Status = "permanent-failure"
	StatusTechnicalFailure    Status = "technical-failure"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusSending, StatusSent, StatusDelivered,
		StatusPending, StatusPendingVirusCheck, StatusPreferencesDeclined,
		StatusTemporaryFailure, StatusPermanentFailure, StatusTechnicalFailure:
		return true
	}
	return false
}

// IsTerminal reports whether no further provider callback may change the status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusPermanentFailure, StatusTechnicalFailure, StatusPreferencesDeclined:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// NotificationType represents the delivery channel.
type NotificationType string

const (
	TypeSMS    NotificationType = "sms"
	TypeEmail  NotificationType = "email"
	TypeLetter NotificationType = "letter"
)

func (t NotificationType) String() string { return string(t) }

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeSMS, TypeEmail, TypeLetter:
		return true
	}
	return false
}

func ParseNotificationTypeFromString(s string) (NotificationType, error) {
	nt := NotificationType(strings.ToLower(strings.TrimSpace(s)))
	if !nt.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return nt, nil
}

// Provider identifies the delivery provider a notification was handed to.
type Provider string

const (
	ProviderSES      Provider = "ses"
	ProviderSNS      Provider = "sns"
	ProviderPinpoint Provider = "pinpoint"
	ProviderPrint    Provider = "print"
)

func (p Provider) String() string { return string(p) }

func (p Provider) IsValid() bool {
	switch p {
	case ProviderSES, ProviderSNS, ProviderPinpoint, ProviderPrint:
		return true
	}
	return false
}

func ParseProviderFromString(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid provider %q", ErrValidation, s)
	}
	return p, nil
}

// Priority represents the processing tier a notification is queued on.
type Priority string

const (
	PriorityBulk   Priority = "bulk"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "priority"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityBulk, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// StatusReason distinguishes how a notification reached a failure status.
type StatusReason string

const (
	ReasonProviderRejected StatusReason = "provider-rejected"
	ReasonRetryExhausted   StatusReason = "retry-exhausted"
	ReasonUnmappedResponse StatusReason = "unmapped-provider-response"
)

func (r StatusReason) String() string { return string(r) }

// Notification is the core domain entity representing a message to be delivered.
type Notification struct {
	ID                string           `gorm:"type:uuid;primaryKey"`
	ServiceID         string           `gorm:"type:uuid;not null"`
	TemplateID        string           `gorm:"type:uuid;not null"`
	ClientReference   *string          `gorm:"type:varchar(255)"`
	IdempotencyKey    *string          `gorm:"type:varchar(255)"`
	Type              NotificationType `gorm:"type:varchar(10);not null"`
	Priority          Priority         `gorm:"type:varchar(10);not null"`
	Recipient         string           `gorm:"type:varchar(255);not null"`
	Subject           *string          `gorm:"type:varchar(255)"`
	Content           string           `gorm:"type:text;not null"`
	Status            Status           `gorm:"type:varchar(25);not null"`
	StatusReason      *string          `gorm:"type:varchar(50)"`
	SentBy            *Provider        `gorm:"type:varchar(20)"`
	ProviderReference *string          `gorm:"type:varchar(255)"`
	ProviderResponse  *string          `gorm:"type:text"`
	AttemptCount      int              `gorm:"not null;default:0"`
	MaxRetries        int              `gorm:"not null;default:5"`
	NextRetryAt       *time.Time
	SentAt            *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (n *Notification) Validate() error {
	if n.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if n.Content == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if n.ServiceID == "" {
		return fmt.Errorf("%w: service id is required", ErrValidation)
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, n.Type)
	}
	if !n.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, n.Priority)
	}
	if n.SentBy != nil && !n.SentBy.IsValid() {
		return fmt.Errorf("%w: invalid provider %q", ErrValidation, *n.SentBy)
	}
	return nil
}

package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/notifygov/delivery-engine/internal/domain"
)

// DeliveryMessage references a persisted notification awaiting dispatch.
type DeliveryMessage struct {
	NotificationID string                  `json:"notificationId"`
	Type           domain.NotificationType `json:"notificationType"`
	Priority       domain.Priority         `json:"priority"`
}

func (m DeliveryMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if !m.Type.IsValid() {
		return fmt.Errorf("invalid notification type %q", m.Type)
	}
	if !m.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", m.Priority)
	}
	return nil
}

// ReceiptMessage wraps a raw provider delivery receipt on its way to the
// reconciler. Attempt counts reconciliation retries for the
// notification-not-yet-persisted race; NotBefore delays a requeued receipt
// until the race has had time to settle.
type ReceiptMessage struct {
	Provider  domain.Provider `json:"provider"`
	Body      json.RawMessage `json:"body"`
	Attempt   int             `json:"attempt"`
	NotBefore *time.Time      `json:"notBefore,omitempty"`
}

func (m ReceiptMessage) Validate() error {
	if !m.Provider.IsValid() {
		return fmt.Errorf("invalid provider %q", m.Provider)
	}
	if len(m.Body) == 0 {
		return fmt.Errorf("receipt body is required")
	}
	if m.Attempt < 0 {
		return fmt.Errorf("attempt must not be negative")
	}
	return nil
}

// CallbackMessage carries a signed status or complaint payload for the
// service callback dispatcher. The payload stays signed across the queue so
// it never needs a storage round trip.
type CallbackMessage struct {
	NotificationID string                     `json:"notificationId"`
	ServiceID      string                     `json:"serviceId"`
	CallbackType   domain.ServiceCallbackType `json:"callbackType"`
	SignedPayload  string                     `json:"signedPayload"`
	Attempt        int                        `json:"attempt"`
	NotBefore      *time.Time                 `json:"notBefore,omitempty"`
}

func (m CallbackMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if strings.TrimSpace(m.ServiceID) == "" {
		return fmt.Errorf("serviceId is required")
	}
	if !m.CallbackType.IsValid() {
		return fmt.Errorf("invalid callback type %q", m.CallbackType)
	}
	if strings.TrimSpace(m.SignedPayload) == "" {
		return fmt.Errorf("signedPayload is required")
	}
	return nil
}

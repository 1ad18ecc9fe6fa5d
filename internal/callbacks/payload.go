package callbacks

import (
	"time"

	"github.com/notifygov/delivery-engine/internal/domain"
)

// DeliveryStatusPayload is the egress body POSTed to a service's
// delivery-status callback endpoint.
type DeliveryStatusPayload struct {
	ID                string  `json:"id"`
	Reference         *string `json:"reference"`
	To                string  `json:"to"`
	Status            string  `json:"status"`
	StatusDescription string  `json:"status_description"`
	ProviderResponse  *string `json:"provider_response"`
	CreatedAt         string  `json:"created_at"`
	CompletedAt       *string `json:"completed_at"`
	SentAt            *string `json:"sent_at"`
	NotificationType  string  `json:"notification_type"`
}

// ComplaintPayload is the egress body POSTed to a service's complaint
// callback endpoint.
type ComplaintPayload struct {
	NotificationID string  `json:"notification_id"`
	ComplaintID    string  `json:"complaint_id"`
	Reference      *string `json:"reference"`
	To             string  `json:"to"`
	ComplaintDate  string  `json:"complaint_date"`
}

func NewDeliveryStatusPayload(n *domain.Notification) DeliveryStatusPayload {
	statusDescription := n.Status.String()
	if n.StatusReason != nil && *n.StatusReason != "" {
		statusDescription = *n.StatusReason
	}

	return DeliveryStatusPayload{
		ID:                n.ID,
		Reference:         n.ClientReference,
		To:                n.Recipient,
		Status:            n.Status.String(),
		StatusDescription: statusDescription,
		ProviderResponse:  n.ProviderResponse,
		CreatedAt:         formatTime(n.CreatedAt),
		CompletedAt:       formatTimePtr(n.CompletedAt),
		SentAt:            formatTimePtr(n.SentAt),
		NotificationType:  n.Type.String(),
	}
}

func NewComplaintPayload(n *domain.Notification, complaint *domain.Complaint) ComplaintPayload {
	return ComplaintPayload{
		NotificationID: n.ID,
		ComplaintID:    complaint.ID,
		Reference:      n.ClientReference,
		To:             n.Recipient,
		ComplaintDate:  formatTime(complaint.ComplaintDate),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	value := formatTime(*t)
	return &value
}

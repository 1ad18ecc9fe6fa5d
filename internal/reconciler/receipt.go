package reconciler

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/notifygov/delivery-engine/internal/domain"
)

// ParsedReceipt is the provider-independent view of one delivery receipt.
type ParsedReceipt struct {
	// Reference is the provider-assigned message id the notification was
	// dispatched under.
	Reference string
	// StatusKey is the provider status token fed into the status mapping.
	StatusKey string
	// ProviderResponse is the human-readable outcome stored on the
	// notification and forwarded to service callbacks.
	ProviderResponse string
	// Complaint is set instead of a status for complaint receipts.
	Complaint *ComplaintInfo
}

// ComplaintInfo carries the complaint fields of an email feedback receipt.
type ComplaintInfo struct {
	FeedbackID    string
	ComplaintType string
	ComplaintDate time.Time
}

type pinpointReceipt struct {
	MessageID                string `json:"messageId"`
	MessageStatus            string `json:"messageStatus"`
	MessageStatusDescription string `json:"messageStatusDescription"`
}

func parsePinpointReceipt(body []byte) (*ParsedReceipt, error) {
	var receipt pinpointReceipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return nil, fmt.Errorf("undecodable pinpoint receipt: %w", err)
	}
	if strings.TrimSpace(receipt.MessageID) == "" {
		return nil, fmt.Errorf("pinpoint receipt has no messageId")
	}

	return &ParsedReceipt{
		Reference:        receipt.MessageID,
		StatusKey:        receipt.MessageStatus,
		ProviderResponse: receipt.MessageStatusDescription,
	}, nil
}

type snsReceipt struct {
	Notification struct {
		MessageID string `json:"messageId"`
	} `json:"notification"`
	Status   string `json:"status"`
	Delivery struct {
		ProviderResponse string `json:"providerResponse"`
	} `json:"delivery"`
}

func parseSNSReceipt(body []byte) (*ParsedReceipt, error) {
	var receipt snsReceipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return nil, fmt.Errorf("undecodable sns receipt: %w", err)
	}
	if strings.TrimSpace(receipt.Notification.MessageID) == "" {
		return nil, fmt.Errorf("sns receipt has no messageId")
	}

	return &ParsedReceipt{
		Reference:        receipt.Notification.MessageID,
		StatusKey:        receipt.Status,
		ProviderResponse: receipt.Delivery.ProviderResponse,
	}, nil
}

type sesReceipt struct {
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID string `json:"messageId"`
	} `json:"mail"`
	Bounce struct {
		BounceType    string `json:"bounceType"`
		BounceSubType string `json:"bounceSubType"`
	} `json:"bounce"`
	Complaint struct {
		FeedbackID            string    `json:"feedbackId"`
		ComplaintFeedbackType string    `json:"complaintFeedbackType"`
		Timestamp             time.Time `json:"timestamp"`
	} `json:"complaint"`
}

func parseSESReceipt(body []byte) (*ParsedReceipt, error) {
	var receipt sesReceipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return nil, fmt.Errorf("undecodable ses receipt: %w", err)
	}
	if strings.TrimSpace(receipt.Mail.MessageID) == "" {
		return nil, fmt.Errorf("ses receipt has no mail.messageId")
	}

	parsed := &ParsedReceipt{
		Reference: receipt.Mail.MessageID,
		StatusKey: receipt.NotificationType,
	}

	switch receipt.NotificationType {
	case "Bounce":
		parsed.StatusKey = "Bounce." + receipt.Bounce.BounceType
		parsed.ProviderResponse = fmt.Sprintf("Bounce %s/%s", receipt.Bounce.BounceType, receipt.Bounce.BounceSubType)
	case "Delivery":
		parsed.ProviderResponse = "Message delivered"
	case "Complaint":
		complaintDate := receipt.Complaint.Timestamp
		if complaintDate.IsZero() {
			complaintDate = time.Now().UTC()
		}
		parsed.Complaint = &ComplaintInfo{
			FeedbackID:    receipt.Complaint.FeedbackID,
			ComplaintType: receipt.Complaint.ComplaintFeedbackType,
			ComplaintDate: complaintDate,
		}
	}

	return parsed, nil
}

// parseReceipt dispatches on the provider the receipt claims to be from.
func parseReceipt(provider domain.Provider, body []byte) (*ParsedReceipt, error) {
	switch provider {
	case domain.ProviderPinpoint:
		return parsePinpointReceipt(body)
	case domain.ProviderSNS:
		return parseSNSReceipt(body)
	case domain.ProviderSES:
		return parseSESReceipt(body)
	default:
		return nil, fmt.Errorf("provider %q does not produce receipts", provider)
	}
}

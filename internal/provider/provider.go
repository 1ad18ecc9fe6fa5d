package provider

import (
	"context"

	"github.com/notifygov/delivery-engine/internal/domain"
)

// Client is the outbound notification delivery port.
type Client interface {
	// ID identifies the provider for sent_by tagging and receipt matching.
	ID() domain.Provider
	Send(ctx context.Context, notification domain.Notification) (*Response, error)
}

// Response stores provider call metadata for audit and persistence.
type Response struct {
	// Reference is the provider-assigned message id used to match
	// asynchronous delivery receipts back to the notification.
	Reference  string
	StatusCode int
	Body       string
}

// AwaitsReceipt reports whether the provider confirms delivery through an
// asynchronous receipt instead of the synchronous send response.
func AwaitsReceipt(p domain.Provider) bool {
	switch p {
	case domain.ProviderSES, domain.ProviderSNS, domain.ProviderPinpoint:
		return true
	case domain.ProviderPrint:
		return false
	}
	return false
}

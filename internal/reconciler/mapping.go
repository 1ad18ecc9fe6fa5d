package reconciler

import (
	"strings"

	"github.com/notifygov/delivery-engine/internal/domain"
)

// ContainsRule maps any receipt description containing Substring to Status.
type ContainsRule struct {
	Substring string
	Status    domain.Status
}

// StatusMapping resolves a provider receipt to a notification status. The
// tables are configuration data so new provider responses can be mapped
// without touching reconciliation logic.
type StatusMapping struct {
	// Statuses keys on the provider's status token.
	Statuses map[string]domain.Status
	// Descriptions keys on the exact human-readable description.
	Descriptions map[string]domain.Status
	// Contains is consulted last, in order.
	Contains []ContainsRule
}

// Resolve returns the mapped notification status, or false when neither the
// status token nor the description is known.
func (m StatusMapping) Resolve(statusKey, description string) (domain.Status, bool) {
	if status, ok := m.Statuses[statusKey]; ok {
		return status, true
	}
	if status, ok := m.Descriptions[description]; ok {
		return status, true
	}
	for _, rule := range m.Contains {
		if strings.Contains(description, rule.Substring) {
			return rule.Status, true
		}
	}
	return "", false
}

// smsFailureReasons are the documented AWS SMS delivery failure descriptions,
// shared by the SNS and Pinpoint receipt formats.
// https://docs.aws.amazon.com/sns/latest/dg/sms_stats_cloudwatch.html#sms_stats_delivery_fail_reasons
func smsFailureReasons() map[string]domain.Status {
	return map[string]domain.Status{
		"Blocked as spam by phone carrier":                   domain.StatusTechnicalFailure,
		"Destination is on a blocked list":                   domain.StatusTechnicalFailure,
		"Invalid phone number":                               domain.StatusTechnicalFailure,
		"Message body is invalid":                            domain.StatusTechnicalFailure,
		"Phone carrier has blocked this message":             domain.StatusTechnicalFailure,
		"Phone carrier is currently unreachable/unavailable": domain.StatusTemporaryFailure,
		"Phone has blocked SMS":                              domain.StatusTechnicalFailure,
		"Phone is on a blocked list":                         domain.StatusTechnicalFailure,
		"Phone is currently unreachable/unavailable":         domain.StatusPermanentFailure,
		"Phone number is opted out":                          domain.StatusPermanentFailure,
		"This delivery would exceed max price":               domain.StatusTechnicalFailure,
		"Unknown error attempting to reach phone":            domain.StatusTechnicalFailure,
	}
}

// DefaultPinpointMapping covers the Pinpoint SMS event format
// (messageStatus + messageStatusDescription).
func DefaultPinpointMapping() StatusMapping {
	return StatusMapping{
		Statuses: map[string]domain.Status{
			"DELIVERED": domain.StatusDelivered,
		},
		Descriptions: smsFailureReasons(),
		Contains: []ContainsRule{
			{Substring: "is opted out", Status: domain.StatusPermanentFailure},
		},
	}
}

// DefaultSNSMapping covers the SNS SMS delivery status format
// (status SUCCESS/FAILURE + providerResponse description).
func DefaultSNSMapping() StatusMapping {
	return StatusMapping{
		Statuses: map[string]domain.Status{
			"SUCCESS": domain.StatusDelivered,
		},
		Descriptions: smsFailureReasons(),
		Contains: []ContainsRule{
			{Substring: "is opted out", Status: domain.StatusPermanentFailure},
		},
	}
}

// DefaultSESMapping covers the SES notification format. The status token is
// notificationType, qualified by bounceType for bounces.
func DefaultSESMapping() StatusMapping {
	return StatusMapping{
		Statuses: map[string]domain.Status{
			"Delivery":            domain.StatusDelivered,
			"Bounce.Permanent":    domain.StatusPermanentFailure,
			"Bounce.Transient":    domain.StatusTemporaryFailure,
			"Bounce.Undetermined": domain.StatusTemporaryFailure,
		},
	}
}

// DefaultMappings wires every receipt-producing provider to its table.
func DefaultMappings() map[domain.Provider]StatusMapping {
	return map[domain.Provider]StatusMapping{
		domain.ProviderPinpoint: DefaultPinpointMapping(),
		domain.ProviderSNS:      DefaultSNSMapping(),
		domain.ProviderSES:      DefaultSESMapping(),
	}
}

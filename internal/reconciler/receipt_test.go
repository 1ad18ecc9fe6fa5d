package reconciler

import (
	"testing"
	"time"

	"github.com/notifygov/delivery-engine/internal/domain"
)

func TestParsePinpointReceipt(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"messageId": "abc-123",
		"messageStatus": "DELIVERED",
		"messageStatusDescription": "Message has been accepted by phone"
	}`)

	parsed, err := parsePinpointReceipt(body)
	if err != nil {
		t.Fatalf("parsePinpointReceipt() error = %v", err)
	}
	if parsed.Reference != "abc-123" {
		t.Fatalf("reference = %q", parsed.Reference)
	}
	if parsed.StatusKey != "DELIVERED" {
		t.Fatalf("status key = %q", parsed.StatusKey)
	}
	if parsed.ProviderResponse != "Message has been accepted by phone" {
		t.Fatalf("provider response = %q", parsed.ProviderResponse)
	}
	if parsed.Complaint != nil {
		t.Fatal("sms receipt should have no complaint")
	}
}

func TestParsePinpointReceiptRequiresMessageID(t *testing.T) {
	t.Parallel()

	if _, err := parsePinpointReceipt([]byte(`{"messageStatus": "DELIVERED"}`)); err == nil {
		t.Fatal("expected an error for a receipt without messageId")
	}
}

func TestParseSNSReceipt(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"notification": {"messageId": "sns-9"},
		"status": "FAILURE",
		"delivery": {"providerResponse": "Phone number is opted out"}
	}`)

	parsed, err := parseSNSReceipt(body)
	if err != nil {
		t.Fatalf("parseSNSReceipt() error = %v", err)
	}
	if parsed.Reference != "sns-9" {
		t.Fatalf("reference = %q", parsed.Reference)
	}
	if parsed.StatusKey != "FAILURE" {
		t.Fatalf("status key = %q", parsed.StatusKey)
	}
	if parsed.ProviderResponse != "Phone number is opted out" {
		t.Fatalf("provider response = %q", parsed.ProviderResponse)
	}
}

func TestParseSESDeliveryReceipt(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"notificationType": "Delivery",
		"mail": {"messageId": "ses-1"}
	}`)

	parsed, err := parseSESReceipt(body)
	if err != nil {
		t.Fatalf("parseSESReceipt() error = %v", err)
	}
	if parsed.Reference != "ses-1" {
		t.Fatalf("reference = %q", parsed.Reference)
	}
	if parsed.StatusKey != "Delivery" {
		t.Fatalf("status key = %q", parsed.StatusKey)
	}
	if parsed.Complaint != nil {
		t.Fatal("delivery receipt should have no complaint")
	}
}

func TestParseSESBounceReceipt(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"notificationType": "Bounce",
		"mail": {"messageId": "ses-2"},
		"bounce": {"bounceType": "Permanent", "bounceSubType": "General"}
	}`)

	parsed, err := parseSESReceipt(body)
	if err != nil {
		t.Fatalf("parseSESReceipt() error = %v", err)
	}
	if parsed.StatusKey != "Bounce.Permanent" {
		t.Fatalf("status key = %q", parsed.StatusKey)
	}
	if parsed.ProviderResponse != "Bounce Permanent/General" {
		t.Fatalf("provider response = %q", parsed.ProviderResponse)
	}
}

func TestParseSESComplaintReceipt(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"notificationType": "Complaint",
		"mail": {"messageId": "ses-3"},
		"complaint": {
			"feedbackId": "fb-1",
			"complaintFeedbackType": "abuse",
			"timestamp": "2026-03-02T08:30:00Z"
		}
	}`)

	parsed, err := parseSESReceipt(body)
	if err != nil {
		t.Fatalf("parseSESReceipt() error = %v", err)
	}
	if parsed.Complaint == nil {
		t.Fatal("expected complaint info")
	}
	if parsed.Complaint.FeedbackID != "fb-1" {
		t.Fatalf("feedback id = %q", parsed.Complaint.FeedbackID)
	}
	if parsed.Complaint.ComplaintType != "abuse" {
		t.Fatalf("complaint type = %q", parsed.Complaint.ComplaintType)
	}
	want := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	if !parsed.Complaint.ComplaintDate.Equal(want) {
		t.Fatalf("complaint date = %v, want %v", parsed.Complaint.ComplaintDate, want)
	}
}

func TestParseReceiptRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	if _, err := parseReceipt(domain.ProviderPrint, []byte(`{}`)); err == nil {
		t.Fatal("expected an error for a provider without receipts")
	}
}

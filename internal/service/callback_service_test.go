package service

import (
	"context"
	"errors"
	"testing"

	"github.com/notifygov/delivery-engine/internal/domain"
	"github.com/notifygov/delivery-engine/internal/signer"
)

func testSigner(t *testing.T) *signer.Signer {
	t.Helper()

	s, err := signer.New("test-secret")
	if err != nil {
		t.Fatalf("signer.New() error = %v", err)
	}
	return s
}

func TestRegisterSignsBearerToken(t *testing.T) {
	t.Parallel()

	s := testSigner(t)

	var upserted *domain.ServiceCallback
	repo := &fakeCallbackRepo{
		upsertFn: func(ctx context.Context, callback *domain.ServiceCallback) error {
			upserted = callback
			return nil
		},
	}

	svc, err := NewCallbackService(repo, s)
	if err != nil {
		t.Fatalf("NewCallbackService() error = %v", err)
	}

	registration, err := svc.Register(context.Background(), "svc-1", domain.CallbackTypeDeliveryStatus, "https://example.org/cb", "plain-token")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if upserted == nil {
		t.Fatal("registration was not persisted")
	}
	if registration.BearerToken == "plain-token" {
		t.Fatal("bearer token must be stored signed")
	}

	var unwrapped string
	if err := s.Verify(signer.PurposeBearerToken, registration.BearerToken, &unwrapped); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if unwrapped != "plain-token" {
		t.Fatalf("unwrapped token = %q", unwrapped)
	}
}

func TestRegisterKeepsExistingID(t *testing.T) {
	t.Parallel()

	s := testSigner(t)
	repo := &fakeCallbackRepo{
		getForServiceFn: func(ctx context.Context, serviceID string, callbackType domain.ServiceCallbackType) (*domain.ServiceCallback, error) {
			return &domain.ServiceCallback{ID: "cb-1", ServiceID: serviceID, Type: callbackType}, nil
		},
	}

	svc, err := NewCallbackService(repo, s)
	if err != nil {
		t.Fatalf("NewCallbackService() error = %v", err)
	}

	registration, err := svc.Register(context.Background(), "svc-1", domain.CallbackTypeDeliveryStatus, "https://example.org/cb", "plain-token")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if registration.ID != "cb-1" {
		t.Fatalf("id = %q, want the existing registration id", registration.ID)
	}
}

func TestRegisterRejectsNonHTTPSURL(t *testing.T) {
	t.Parallel()

	svc, err := NewCallbackService(&fakeCallbackRepo{}, testSigner(t))
	if err != nil {
		t.Fatalf("NewCallbackService() error = %v", err)
	}

	_, err = svc.Register(context.Background(), "svc-1", domain.CallbackTypeDeliveryStatus, "http://example.org/cb", "plain-token")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Register() error = %v, want validation error", err)
	}
}

func TestRegisterRejectsInvalidType(t *testing.T) {
	t.Parallel()

	svc, err := NewCallbackService(&fakeCallbackRepo{}, testSigner(t))
	if err != nil {
		t.Fatalf("NewCallbackService() error = %v", err)
	}

	_, err = svc.Register(context.Background(), "svc-1", domain.ServiceCallbackType("webhook"), "https://example.org/cb", "plain-token")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Register() error = %v, want validation error", err)
	}
}

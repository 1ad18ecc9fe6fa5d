package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notifygov/delivery-engine/internal/domain"
	"github.com/notifygov/delivery-engine/internal/repository"
	"github.com/notifygov/delivery-engine/internal/signer"
)

// CallbackService manages service callback registrations. Bearer tokens are
// stored signed and only ever unwrapped by the dispatcher at send time.
type CallbackService struct {
	callbacks repository.ServiceCallbackRepository
	signer    *signer.Signer
	now       func() time.Time
}

func NewCallbackService(callbacks repository.ServiceCallbackRepository, payloadSigner *signer.Signer) (*CallbackService, error) {
	if callbacks == nil {
		return nil, fmt.Errorf("service callback repository is required")
	}
	if payloadSigner == nil {
		return nil, fmt.Errorf("signer is required")
	}

	return &CallbackService{
		callbacks: callbacks,
		signer:    payloadSigner,
		now:       time.Now,
	}, nil
}

func (s *CallbackService) Register(ctx context.Context, serviceID string, callbackType domain.ServiceCallbackType, callbackURL string, bearerToken string) (*domain.ServiceCallback, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return nil, fmt.Errorf("%w: service id is required", domain.ErrValidation)
	}
	if !callbackType.IsValid() {
		return nil, fmt.Errorf("%w: invalid callback type %q", domain.ErrValidation, callbackType)
	}

	callbackURL = strings.TrimSpace(callbackURL)
	parsed, err := url.ParseRequestURI(callbackURL)
	if err != nil || parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: callback url must be https", domain.ErrValidation)
	}

	if strings.TrimSpace(bearerToken) == "" {
		return nil, fmt.Errorf("%w: bearer token is required", domain.ErrValidation)
	}
	signedToken, err := s.signer.Sign(signer.PurposeBearerToken, bearerToken)
	if err != nil {
		return nil, fmt.Errorf("failed to sign bearer token: %w", err)
	}

	existing, err := s.callbacks.GetForService(ctx, serviceID, callbackType)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	registration := &domain.ServiceCallback{
		ID:          uuid.NewString(),
		ServiceID:   serviceID,
		URL:         callbackURL,
		BearerToken: signedToken,
		Type:        callbackType,
		CreatedAt:   s.now().UTC(),
		UpdatedAt:   s.now().UTC(),
	}
	if existing != nil {
		registration.ID = existing.ID
		registration.CreatedAt = existing.CreatedAt
	}

	if err := s.callbacks.Upsert(ctx, registration); err != nil {
		return nil, err
	}
	return registration, nil
}

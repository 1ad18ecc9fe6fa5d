package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/notifygov/delivery-engine/internal/callbacks"
	"github.com/notifygov/delivery-engine/internal/domain"
	"github.com/notifygov/delivery-engine/internal/observability"
	"github.com/notifygov/delivery-engine/internal/queue"
	"github.com/notifygov/delivery-engine/internal/repository"
	"github.com/notifygov/delivery-engine/internal/signer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxReceiptRetries = 5
	defaultReceiptRetryDelay = 5 * time.Minute
	defaultBatchSize         = 10
	defaultPollInterval      = time.Second
)

// receiptExpectedStatuses are the only statuses a receipt may transition
// from. Anything else is a duplicate or stale callback.
var receiptExpectedStatuses = []domain.Status{domain.StatusSending, domain.StatusSent}

// Reconciler consumes provider delivery receipts and converges notification
// statuses with what the provider reports.
type Reconciler struct {
	notifications    repository.NotificationRepository
	complaints       repository.ComplaintRepository
	serviceCallbacks repository.ServiceCallbackRepository
	lanes            *queue.Lanes
	signer           *signer.Signer
	mappings         map[domain.Provider]StatusMapping
	logger           *zap.Logger
	metrics          *observability.Metrics
	maxRetries       int
	retryDelay       time.Duration
	batchSize        int
	pollInterval     time.Duration
	now              func() time.Time
}

func NewReconciler(
	notifications repository.NotificationRepository,
	complaints repository.ComplaintRepository,
	serviceCallbacks repository.ServiceCallbackRepository,
	lanes *queue.Lanes,
	payloadSigner *signer.Signer,
	logger *zap.Logger,
) (*Reconciler, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if complaints == nil {
		return nil, fmt.Errorf("complaint repository is required")
	}
	if serviceCallbacks == nil {
		return nil, fmt.Errorf("service callback repository is required")
	}
	if lanes == nil {
		return nil, fmt.Errorf("lanes are required")
	}
	if payloadSigner == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		notifications:    notifications,
		complaints:       complaints,
		serviceCallbacks: serviceCallbacks,
		lanes:            lanes,
		signer:           payloadSigner,
		mappings:         DefaultMappings(),
		logger:           logger,
		maxRetries:       defaultMaxReceiptRetries,
		retryDelay:       defaultReceiptRetryDelay,
		batchSize:        defaultBatchSize,
		pollInterval:     defaultPollInterval,
		now:              time.Now,
	}, nil
}

func (r *Reconciler) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// Start consumes the receipts lane and the retry lane with the same handler
// until context cancellation.
func (r *Reconciler) Start(ctx context.Context) error {
	g, groupCtx := errgroup.WithContext(ctx)

	for _, laneName := range []string{queue.LaneReceipts, queue.LaneRetry} {
		laneQueue, err := r.lanes.Get(laneName)
		if err != nil {
			return err
		}
		consumer, err := queue.NewConsumer(laneQueue, r.HandleMessage, r.batchSize, r.pollInterval, r.logger)
		if err != nil {
			return err
		}

		name := laneName
		g.Go(func() error {
			r.logger.Info("reconciler started", zap.String("lane", name))
			return consumer.Run(groupCtx)
		})
	}

	return g.Wait()
}

// HandleMessage processes one polled receipt.
func (r *Reconciler) HandleMessage(ctx context.Context, payload []byte) error {
	var msg queue.ReceiptMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		r.logger.Error("dropping undecodable receipt message", zap.Error(err))
		return nil
	}
	if err := msg.Validate(); err != nil {
		r.logger.Error("dropping invalid receipt message", zap.Error(err))
		return nil
	}

	// Not yet due: push it back and let the retry lane cycle it around.
	if msg.NotBefore != nil && r.now().Before(*msg.NotBefore) {
		return r.lanes.Publish(ctx, queue.LaneRetry, msg)
	}

	parsed, err := parseReceipt(msg.Provider, msg.Body)
	if err != nil {
		r.logger.Error("dropping unparseable receipt",
			zap.String("provider", msg.Provider.String()),
			zap.Error(err),
		)
		return nil
	}

	if parsed.Complaint != nil {
		return r.handleComplaint(ctx, msg, parsed)
	}

	mapping, ok := r.mappings[msg.Provider]
	if !ok {
		r.logger.Error("no status mapping for provider, dropping receipt",
			zap.String("provider", msg.Provider.String()),
		)
		return nil
	}

	status, mapped := mapping.Resolve(parsed.StatusKey, parsed.ProviderResponse)
	var reason domain.StatusReason
	if !mapped {
		// An unmapped provider response must never pass silently.
		r.logger.Error("unmapped provider response, treating as technical failure",
			zap.String("provider", msg.Provider.String()),
			zap.String("reference", parsed.Reference),
			zap.String("statusKey", parsed.StatusKey),
			zap.String("providerResponse", parsed.ProviderResponse),
		)
		status = domain.StatusTechnicalFailure
		reason = domain.ReasonUnmappedResponse
	}

	notification, err := r.notifications.GetByProviderReference(ctx, parsed.Reference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return r.requeueOrDrop(ctx, msg, parsed.Reference, status)
		}
		return fmt.Errorf("failed to look up notification by reference: %w", err)
	}

	if notification.SentBy == nil || *notification.SentBy != msg.Provider {
		r.logger.Error("receipt provider does not match notification sender, ignoring",
			zap.String("notificationId", notification.ID),
			zap.String("receiptProvider", msg.Provider.String()),
		)
		return nil
	}

	completedAt := r.now().UTC()
	changed, err := r.notifications.TransitionFromReceipt(
		ctx, notification.ID, receiptExpectedStatuses, status, parsed.ProviderResponse, completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to apply receipt transition: %w", err)
	}
	if !changed {
		r.logger.Warn("duplicate or stale receipt, no update applied",
			zap.String("notificationId", notification.ID),
			zap.String("currentStatus", notification.Status.String()),
			zap.String("receiptStatus", status.String()),
		)
		return nil
	}

	if status == domain.StatusDelivered {
		r.logger.Info("receipt confirmed delivery",
			zap.String("notificationId", notification.ID),
			zap.String("provider", msg.Provider.String()),
		)
	} else {
		r.logger.Info("receipt reported delivery failure",
			zap.String("notificationId", notification.ID),
			zap.String("provider", msg.Provider.String()),
			zap.String("status", status.String()),
			zap.String("providerResponse", parsed.ProviderResponse),
		)
	}

	if r.metrics != nil {
		r.metrics.IncReceiptProcessed(msg.Provider.String(), status.String())
		if notification.SentAt != nil {
			r.metrics.ObserveReceiptLag(msg.Provider.String(), r.now().Sub(*notification.SentAt))
		}
	}

	updated := *notification
	updated.Status = status
	if reason != "" {
		reasonValue := reason.String()
		updated.StatusReason = &reasonValue
	}
	if parsed.ProviderResponse != "" {
		responseValue := parsed.ProviderResponse
		updated.ProviderResponse = &responseValue
	}
	updated.CompletedAt = &completedAt

	return r.enqueueDeliveryStatusCallback(ctx, &updated)
}

// requeueOrDrop handles the receipt-before-persist race: the provider can
// report back before the sending transaction commits.
func (r *Reconciler) requeueOrDrop(ctx context.Context, msg queue.ReceiptMessage, reference string, status domain.Status) error {
	if msg.Attempt+1 >= r.maxRetries {
		r.logger.Warn("notification not found for receipt, giving up",
			zap.String("provider", msg.Provider.String()),
			zap.String("reference", reference),
			zap.String("receiptStatus", status.String()),
			zap.Int("attempts", msg.Attempt+1),
		)
		return nil
	}

	notBefore := r.now().Add(r.retryDelay)
	retry := msg
	retry.Attempt = msg.Attempt + 1
	retry.NotBefore = &notBefore

	if err := r.lanes.Publish(ctx, queue.LaneRetry, retry); err != nil {
		return fmt.Errorf("failed to requeue receipt: %w", err)
	}

	r.logger.Warn("notification not found for receipt, requeued",
		zap.String("provider", msg.Provider.String()),
		zap.String("reference", reference),
		zap.Int("attempt", retry.Attempt),
	)
	if r.metrics != nil {
		r.metrics.IncReceiptRequeued(msg.Provider.String())
	}
	return nil
}

func (r *Reconciler) handleComplaint(ctx context.Context, msg queue.ReceiptMessage, parsed *ParsedReceipt) error {
	notification, err := r.notifications.GetByProviderReference(ctx, parsed.Reference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return r.requeueOrDrop(ctx, msg, parsed.Reference, domain.StatusDelivered)
		}
		return fmt.Errorf("failed to look up notification for complaint: %w", err)
	}

	complaint := &domain.Complaint{
		ID:             uuid.NewString(),
		NotificationID: notification.ID,
		ServiceID:      notification.ServiceID,
		ComplaintType:  domain.ComplaintType(parsed.Complaint.ComplaintType),
		ComplaintDate:  parsed.Complaint.ComplaintDate,
		CreatedAt:      r.now().UTC(),
	}
	if parsed.Complaint.FeedbackID != "" {
		feedbackID := parsed.Complaint.FeedbackID
		complaint.FeedbackID = &feedbackID
	}

	if err := r.complaints.Create(ctx, complaint); err != nil {
		return fmt.Errorf("failed to persist complaint: %w", err)
	}

	r.logger.Info("complaint recorded",
		zap.String("notificationId", notification.ID),
		zap.String("complaintId", complaint.ID),
	)
	if r.metrics != nil {
		r.metrics.IncReceiptProcessed(msg.Provider.String(), "complaint")
	}

	registration, err := r.serviceCallbacks.GetForService(ctx, notification.ServiceID, domain.CallbackTypeComplaint)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up complaint callback: %w", err)
	}

	payload := callbacks.NewComplaintPayload(notification, complaint)
	token, err := r.signer.Sign(signer.PurposeComplaint, payload)
	if err != nil {
		return fmt.Errorf("failed to sign complaint payload: %w", err)
	}

	return r.lanes.Publish(ctx, queue.LaneCallbacks, queue.CallbackMessage{
		NotificationID: notification.ID,
		ServiceID:      registration.ServiceID,
		CallbackType:   domain.CallbackTypeComplaint,
		SignedPayload:  token,
	})
}

func (r *Reconciler) enqueueDeliveryStatusCallback(ctx context.Context, notification *domain.Notification) error {
	registration, err := r.serviceCallbacks.GetForService(ctx, notification.ServiceID, domain.CallbackTypeDeliveryStatus)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up delivery status callback: %w", err)
	}

	payload := callbacks.NewDeliveryStatusPayload(notification)
	token, err := r.signer.Sign(signer.PurposeDeliveryStatus, payload)
	if err != nil {
		return fmt.Errorf("failed to sign delivery status payload: %w", err)
	}

	return r.lanes.Publish(ctx, queue.LaneCallbacks, queue.CallbackMessage{
		NotificationID: notification.ID,
		ServiceID:      registration.ServiceID,
		CallbackType:   domain.CallbackTypeDeliveryStatus,
		SignedPayload:  token,
	})
}

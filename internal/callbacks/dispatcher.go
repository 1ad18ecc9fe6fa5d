package callbacks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/notifygov/delivery-engine/internal/domain"
	"github.com/notifygov/delivery-engine/internal/observability"
	"github.com/notifygov/delivery-engine/internal/queue"
	"github.com/notifygov/delivery-engine/internal/repository"
	"github.com/notifygov/delivery-engine/internal/signer"
	"go.uber.org/zap"
)

const (
	defaultCallbackTimeout    = 60 * time.Second
	defaultCallbackMaxRetries = 5
	defaultCallbackRetryDelay = 5 * time.Minute
	defaultBatchSize          = 10
	defaultPollInterval       = time.Second
)

// Dispatcher consumes the callbacks lane and POSTs verified payloads to the
// endpoints services registered.
type Dispatcher struct {
	serviceCallbacks repository.ServiceCallbackRepository
	signer           *signer.Signer
	lanes            *queue.Lanes
	client           *resty.Client
	logger           *zap.Logger
	metrics          *observability.Metrics
	maxRetries       int
	retryDelay       time.Duration
	batchSize        int
	pollInterval     time.Duration
	now              func() time.Time
}

func NewDispatcher(
	serviceCallbacks repository.ServiceCallbackRepository,
	payloadSigner *signer.Signer,
	lanes *queue.Lanes,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if serviceCallbacks == nil {
		return nil, fmt.Errorf("service callback repository is required")
	}
	if payloadSigner == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if lanes == nil {
		return nil, fmt.Errorf("lanes are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New()
	client.SetTimeout(defaultCallbackTimeout)
	client.SetRetryCount(0)

	return &Dispatcher{
		serviceCallbacks: serviceCallbacks,
		signer:           payloadSigner,
		lanes:            lanes,
		client:           client,
		logger:           logger,
		maxRetries:       defaultCallbackMaxRetries,
		retryDelay:       defaultCallbackRetryDelay,
		batchSize:        defaultBatchSize,
		pollInterval:     defaultPollInterval,
		now:              time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Start consumes the callbacks lane until context cancellation.
func (d *Dispatcher) Start(ctx context.Context) error {
	laneQueue, err := d.lanes.Get(queue.LaneCallbacks)
	if err != nil {
		return err
	}

	consumer, err := queue.NewConsumer(laneQueue, d.HandleMessage, d.batchSize, d.pollInterval, d.logger)
	if err != nil {
		return err
	}

	d.logger.Info("callback dispatcher started")
	return consumer.Run(ctx)
}

// HandleMessage processes one polled callbacks lane item.
func (d *Dispatcher) HandleMessage(ctx context.Context, payload []byte) error {
	var msg queue.CallbackMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		d.logger.Error("dropping undecodable callback message", zap.Error(err))
		return nil
	}
	if err := msg.Validate(); err != nil {
		d.logger.Error("dropping invalid callback message",
			zap.String("notificationId", msg.NotificationID),
			zap.Error(err),
		)
		return nil
	}

	// Not yet due: push it back and let the lane cycle it around.
	if msg.NotBefore != nil && d.now().Before(*msg.NotBefore) {
		return d.lanes.Publish(ctx, queue.LaneCallbacks, msg)
	}

	purpose := signer.PurposeDeliveryStatus
	if msg.CallbackType == domain.CallbackTypeComplaint {
		purpose = signer.PurposeComplaint
	}

	var body json.RawMessage
	if err := d.signer.Verify(purpose, msg.SignedPayload, &body); err != nil {
		// A payload that fails verification can never succeed; drop it loudly.
		d.logger.Error("dropping callback with unverifiable payload",
			zap.String("notificationId", msg.NotificationID),
			zap.String("callbackType", string(msg.CallbackType)),
			zap.Error(err),
		)
		if d.metrics != nil {
			d.metrics.IncCallbackFailed(string(msg.CallbackType), "bad-signature")
		}
		return nil
	}

	registration, err := d.serviceCallbacks.GetForService(ctx, msg.ServiceID, msg.CallbackType)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The service deregistered between enqueue and dispatch.
			d.logger.Info("no callback registered, dropping",
				zap.String("serviceId", msg.ServiceID),
				zap.String("callbackType", string(msg.CallbackType)),
			)
			return nil
		}
		return fmt.Errorf("failed to load callback registration: %w", err)
	}

	var bearerToken string
	if err := d.signer.Verify(signer.PurposeBearerToken, registration.BearerToken, &bearerToken); err != nil {
		d.logger.Error("dropping callback with undecodable bearer token",
			zap.String("serviceId", msg.ServiceID),
			zap.Error(err),
		)
		if d.metrics != nil {
			d.metrics.IncCallbackFailed(string(msg.CallbackType), "bad-bearer-token")
		}
		return nil
	}

	response, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(bearerToken).
		SetBody(body).
		Post(registration.URL)

	switch {
	case err != nil:
		return d.retryOrDrop(ctx, msg, "transport-error", fmt.Sprintf("request failed: %v", err))
	case response.StatusCode() >= http.StatusInternalServerError || response.StatusCode() == http.StatusTooManyRequests:
		return d.retryOrDrop(ctx, msg, "server-error", fmt.Sprintf("status %d", response.StatusCode()))
	case response.StatusCode() >= http.StatusBadRequest:
		// Other 4xx means the service endpoint rejects the payload shape or
		// auth; retrying cannot fix that.
		d.logger.Warn("callback rejected by service, dropping",
			zap.String("notificationId", msg.NotificationID),
			zap.String("serviceId", msg.ServiceID),
			zap.Int("status", response.StatusCode()),
		)
		if d.metrics != nil {
			d.metrics.IncCallbackFailed(string(msg.CallbackType), "client-error")
		}
		return nil
	}

	d.logger.Info("callback delivered",
		zap.String("notificationId", msg.NotificationID),
		zap.String("serviceId", msg.ServiceID),
		zap.String("callbackType", string(msg.CallbackType)),
		zap.Int("status", response.StatusCode()),
	)
	if d.metrics != nil {
		d.metrics.IncCallbackSent(string(msg.CallbackType))
		d.observeLatency(msg.CallbackType, body)
	}
	return nil
}

func (d *Dispatcher) retryOrDrop(ctx context.Context, msg queue.CallbackMessage, reason string, detail string) error {
	if msg.Attempt+1 >= d.maxRetries {
		d.logger.Warn("callback retries exhausted, dropping",
			zap.String("notificationId", msg.NotificationID),
			zap.String("serviceId", msg.ServiceID),
			zap.Int("attempts", msg.Attempt+1),
			zap.String("detail", detail),
		)
		if d.metrics != nil {
			d.metrics.IncCallbackFailed(string(msg.CallbackType), "retry-exhausted")
		}
		return nil
	}

	notBefore := d.now().Add(d.retryDelay)
	retry := msg
	retry.Attempt = msg.Attempt + 1
	retry.NotBefore = &notBefore

	if err := d.lanes.Publish(ctx, queue.LaneCallbacks, retry); err != nil {
		return fmt.Errorf("failed to requeue callback: %w", err)
	}

	d.logger.Info("callback retry scheduled",
		zap.String("notificationId", msg.NotificationID),
		zap.Int("attempt", retry.Attempt),
		zap.Time("notBefore", notBefore),
		zap.String("detail", detail),
	)
	if d.metrics != nil {
		d.metrics.IncCallbackFailed(string(msg.CallbackType), reason)
	}
	return nil
}

// observeLatency reads created_at out of the delivered payload so the
// histogram tracks end-to-end time from intake to service callback.
func (d *Dispatcher) observeLatency(callbackType domain.ServiceCallbackType, body json.RawMessage) {
	var envelope struct {
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.CreatedAt == "" {
		return
	}
	createdAt, err := time.Parse(time.RFC3339, envelope.CreatedAt)
	if err != nil {
		return
	}
	d.metrics.ObserveCallbackLatency(string(callbackType), d.now().Sub(createdAt))
}

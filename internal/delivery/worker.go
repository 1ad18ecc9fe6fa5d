package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notifygov/delivery-engine/internal/domain"
	"github.com/notifygov/delivery-engine/internal/observability"
	"github.com/notifygov/delivery-engine/internal/provider"
	"github.com/notifygov/delivery-engine/internal/queue"
	"github.com/notifygov/delivery-engine/internal/ratelimit"
	"github.com/notifygov/delivery-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSendTimeout   = 30 * time.Second
	defaultBatchSize     = 10
	defaultPollInterval  = time.Second
	minWorkerConcurrency = 1
)

// Worker consumes the delivery lanes and pushes notifications through their
// provider.
type Worker struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	lanes         *queue.Lanes
	router        *Router
	rateLimiter   ratelimit.RateLimiter
	retryPolicy   RetryPolicy
	logger        *zap.Logger
	metrics       *observability.Metrics
	concurrency   int
	batchSize     int
	pollInterval  time.Duration
	sendTimeout   time.Duration
	now           func() time.Time
}

func NewWorker(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	lanes *queue.Lanes,
	router *Router,
	rateLimiter ratelimit.RateLimiter,
	retryPolicy RetryPolicy,
	concurrency int,
	logger *zap.Logger,
) (*Worker, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if lanes == nil {
		return nil, fmt.Errorf("lanes are required")
	}
	if router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if rateLimiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		notifications: notifications,
		attempts:      attempts,
		lanes:         lanes,
		router:        router,
		rateLimiter:   rateLimiter,
		retryPolicy:   retryPolicy,
		logger:        logger,
		concurrency:   concurrency,
		batchSize:     defaultBatchSize,
		pollInterval:  defaultPollInterval,
		sendTimeout:   defaultSendTimeout,
		now:           time.Now,
	}, nil
}

func (w *Worker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start runs one consumer loop per delivery lane, spreading any extra
// concurrency round-robin across the lanes, until context cancellation.
func (w *Worker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	laneNames := queue.DeliveryLanes()
	concurrency := w.concurrency
	if concurrency < len(laneNames) {
		concurrency = len(laneNames)
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		laneName := laneNames[i%len(laneNames)]
		workerID := i + 1

		laneQueue, err := w.lanes.Get(laneName)
		if err != nil {
			return err
		}
		consumer, err := queue.NewConsumer(laneQueue, w.HandleMessage, w.batchSize, w.pollInterval, w.logger)
		if err != nil {
			return err
		}

		g.Go(func() error {
			w.logger.Info("delivery worker started",
				zap.Int("workerId", workerID),
				zap.String("lane", laneName),
			)

			if err := consumer.Run(groupCtx); err != nil {
				w.logger.Error("delivery worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("lane", laneName),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("delivery worker stopped",
				zap.Int("workerId", workerID),
				zap.String("lane", laneName),
			)
			return nil
		})
	}

	return g.Wait()
}

// HandleMessage processes one polled delivery lane item.
func (w *Worker) HandleMessage(ctx context.Context, payload []byte) error {
	var msg queue.DeliveryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		w.logger.Error("dropping undecodable delivery message", zap.Error(err))
		return nil
	}
	if err := msg.Validate(); err != nil {
		w.logger.Error("dropping invalid delivery message",
			zap.String("notificationId", msg.NotificationID),
			zap.Error(err),
		)
		return nil
	}

	notification, err := w.notifications.LockForSending(ctx, msg.NotificationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.logger.Warn("notification not found during lock, skipping",
				zap.String("notificationId", msg.NotificationID),
			)
			return nil
		}
		return fmt.Errorf("failed to lock notification for sending: %w", err)
	}

	// Nil means terminal or already claimed; ack and skip.
	if notification == nil {
		return nil
	}

	channelName := notification.Type.String()
	if w.metrics != nil {
		w.metrics.IncWorkerInFlight(channelName)
		defer w.metrics.DecWorkerInFlight(channelName)
	}

	client, err := w.router.Route(*notification)
	if err != nil {
		return fmt.Errorf("failed to route notification: %w", err)
	}
	providerName := client.ID().String()

	if err := w.rateLimiter.Wait(ctx, providerName); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	attemptNumber := notification.AttemptCount + 1
	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	sendStart := w.now()
	resp, sendErr := client.Send(sendCtx, *notification)
	cancel()
	if w.metrics != nil {
		w.metrics.ObserveNotificationSendDuration(providerName, w.now().Sub(sendStart))
	}

	if err := w.recordAttempt(ctx, notification.ID, attemptNumber, providerName, resp, sendErr); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	if sendErr == nil {
		return w.handleSendSuccess(ctx, notification, client, resp, channelName)
	}
	return w.handleSendFailure(ctx, notification, attemptNumber, channelName, resp, sendErr)
}

func (w *Worker) handleSendSuccess(
	ctx context.Context,
	notification *domain.Notification,
	client provider.Client,
	resp *provider.Response,
	channelName string,
) error {
	reference := ""
	if resp != nil {
		reference = strings.TrimSpace(resp.Reference)
	}

	// Providers with async receipts stay in sending until the reconciler
	// applies their delivery receipt; push-style providers are done.
	status := domain.StatusSent
	if provider.AwaitsReceipt(client.ID()) {
		status = domain.StatusSending
	}

	if err := w.notifications.MarkDispatched(ctx, notification.ID, status, client.ID(), reference, w.now().UTC()); err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}

	if w.metrics != nil {
		w.metrics.IncNotificationSent(channelName, client.ID().String())
	}
	return nil
}

func (w *Worker) handleSendFailure(
	ctx context.Context,
	notification *domain.Notification,
	attemptNumber int,
	channelName string,
	resp *provider.Response,
	sendErr error,
) error {
	isTransient := provider.IsTransient(sendErr)

	allowRetry := w.retryPolicy.ShouldRetry(attemptNumber)
	if notification.MaxRetries > 0 && attemptNumber >= notification.MaxRetries {
		// A per-notification cap tightens the policy, never widens it.
		allowRetry = false
	}

	if isTransient && allowRetry {
		nextRetryAt := w.now().Add(w.retryPolicy.Delay(attemptNumber))
		if err := w.notifications.ScheduleRetry(ctx, notification.ID, nextRetryAt); err != nil {
			return fmt.Errorf("failed to schedule retry: %w", err)
		}
		w.logger.Info("delivery retry scheduled",
			zap.String("notificationId", notification.ID),
			zap.Int("attempt", attemptNumber),
			zap.Time("nextRetryAt", nextRetryAt),
			zap.Error(sendErr),
		)
		if w.metrics != nil {
			w.metrics.IncRetryScheduled(channelName)
		}
		return nil
	}

	status := domain.StatusPermanentFailure
	reason := domain.ReasonProviderRejected
	if isTransient {
		status = domain.StatusTechnicalFailure
		reason = domain.ReasonRetryExhausted
	}

	var providerResponse *string
	if resp != nil && strings.TrimSpace(resp.Body) != "" {
		providerResponse = &resp.Body
	} else if sendErr != nil {
		value := sendErr.Error()
		providerResponse = &value
	}

	if err := w.notifications.MarkFailed(ctx, notification.ID, status, reason, providerResponse); err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}

	w.logger.Error("delivery failed",
		zap.String("notificationId", notification.ID),
		zap.Int("attempt", attemptNumber),
		zap.String("status", status.String()),
		zap.String("reason", reason.String()),
		zap.Error(sendErr),
	)
	if w.metrics != nil {
		w.metrics.IncNotificationFailed(channelName, reason.String())
	}
	return nil
}

func (w *Worker) recordAttempt(
	ctx context.Context,
	notificationID string,
	attemptNumber int,
	providerName string,
	resp *provider.Response,
	sendErr error,
) error {
	var statusCode *int
	var responseBody *string
	var attemptErr *string

	if resp != nil {
		if resp.StatusCode > 0 {
			value := resp.StatusCode
			statusCode = &value
		}
		if body := strings.TrimSpace(resp.Body); body != "" {
			value := resp.Body
			responseBody = &value
		}
	}

	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value

		var providerErr *provider.Error
		if errors.As(sendErr, &providerErr) && providerErr.StatusCode > 0 && statusCode == nil {
			value := providerErr.StatusCode
			statusCode = &value
		}
	}

	attempt := &domain.NotificationAttempt{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		AttemptNumber:  attemptNumber,
		Provider:       &providerName,
		StatusCode:     statusCode,
		ResponseBody:   responseBody,
		Error:          attemptErr,
		CreatedAt:      w.now().UTC(),
	}

	return w.attempts.Create(ctx, attempt)
}

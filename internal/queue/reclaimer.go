package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReclaimInterval = 30 * time.Second
	defaultReclaimMaxLists = 10
)

// Reclaimer sweeps expired in-flight lists back into their inboxes so a
// consumer crash between poll and acknowledge never loses messages.
type Reclaimer struct {
	queues   []*RedisQueue
	timeout  time.Duration
	interval time.Duration
	maxLists int
	logger   *zap.Logger
}

func NewReclaimer(queues []*RedisQueue, visibilityTimeout time.Duration, interval time.Duration, logger *zap.Logger) (*Reclaimer, error) {
	if len(queues) == 0 {
		return nil, fmt.Errorf("at least one queue is required")
	}
	if visibilityTimeout <= 0 {
		return nil, fmt.Errorf("visibility timeout must be positive")
	}
	if interval <= 0 {
		interval = defaultReclaimInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reclaimer{
		queues:   queues,
		timeout:  visibilityTimeout,
		interval: interval,
		maxLists: defaultReclaimMaxLists,
		logger:   logger,
	}, nil
}

// Start sweeps on an interval until context cancellation.
func (r *Reclaimer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial sweep so lists orphaned by a previous crash do not wait
	// for the first ticker edge.
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reclaimer) sweep(ctx context.Context) {
	for _, q := range r.queues {
		requeued, err := q.ReclaimExpired(ctx, r.timeout, r.maxLists)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("reclaim sweep failed",
				zap.String("lane", q.Lane()),
				zap.Error(err),
			)
			continue
		}
		if requeued > 0 {
			r.logger.Warn("requeued expired in-flight items",
				zap.String("lane", q.Lane()),
				zap.Int("requeued", requeued),
			)
		}
	}
}

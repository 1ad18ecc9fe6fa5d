package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBatchSize    = 10
	defaultPollInterval = time.Second
)

// Handler processes one polled queue item.
type Handler func(ctx context.Context, payload []byte) error

// Consumer drives a poll/handle/acknowledge loop over one lane.
//
// A batch is acknowledged only when every item was handled without error;
// otherwise the in-flight list is left for the Reclaimer to requeue, so
// handlers must tolerate redelivery.
type Consumer struct {
	queue     *RedisQueue
	handler   Handler
	batchSize int
	interval  time.Duration
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewConsumer(queue *RedisQueue, handler Handler, batchSize int, interval time.Duration, logger *zap.Logger) (*Consumer, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Consumer{
		queue:     queue,
		handler:   handler,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger,
		sleep:     sleepWithContext,
	}, nil
}

// Run polls the lane until context cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		receipt, items, err := c.queue.Poll(ctx, c.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("poll failed",
				zap.String("lane", c.queue.Lane()),
				zap.Error(err),
			)
			if err := c.sleep(ctx, c.interval); err != nil {
				return nil
			}
			continue
		}

		if len(items) == 0 {
			if err := c.sleep(ctx, c.interval); err != nil {
				return nil
			}
			continue
		}

		failed := 0
		for _, item := range items {
			if err := c.handler(ctx, item); err != nil {
				failed++
				c.logger.Error("handler failed",
					zap.String("lane", c.queue.Lane()),
					zap.String("receipt", receipt.String()),
					zap.Error(err),
				)
			}
		}

		if failed > 0 {
			// Leave the batch in-flight; the reclaimer requeues it after the
			// visibility timeout.
			c.logger.Warn("leaving batch unacknowledged",
				zap.String("lane", c.queue.Lane()),
				zap.String("receipt", receipt.String()),
				zap.Int("failed", failed),
				zap.Int("total", len(items)),
			)
			continue
		}

		if err := c.queue.Acknowledge(ctx, receipt); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("acknowledge failed",
				zap.String("lane", c.queue.Lane()),
				zap.String("receipt", receipt.String()),
				zap.Error(err),
			)
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

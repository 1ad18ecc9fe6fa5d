package queue

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Lanes is the registry of every lane the engine publishes to or consumes.
type Lanes struct {
	queues map[string]*RedisQueue
}

// NewLanes builds a RedisQueue per lane name over one shared client.
func NewLanes(client *goredis.Client, laneNames []string) (*Lanes, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if len(laneNames) == 0 {
		return nil, fmt.Errorf("at least one lane is required")
	}

	queues := make(map[string]*RedisQueue, len(laneNames))
	for _, name := range laneNames {
		q, err := NewRedisQueue(client, name)
		if err != nil {
			return nil, fmt.Errorf("failed to build lane %q: %w", name, err)
		}
		queues[name] = q
	}

	return &Lanes{queues: queues}, nil
}

// Get returns the queue for a lane name.
func (l *Lanes) Get(lane string) (*RedisQueue, error) {
	if l == nil {
		return nil, fmt.Errorf("lanes are not initialized")
	}
	q, ok := l.queues[lane]
	if !ok {
		return nil, fmt.Errorf("unknown lane %q", lane)
	}
	return q, nil
}

// Publish appends an item to the named lane.
func (l *Lanes) Publish(ctx context.Context, lane string, item any) error {
	q, err := l.Get(lane)
	if err != nil {
		return err
	}
	return q.Publish(ctx, item)
}

// All returns every registered queue.
func (l *Lanes) All() []*RedisQueue {
	if l == nil {
		return nil
	}
	queues := make([]*RedisQueue, 0, len(l.queues))
	for _, q := range l.queues {
		queues = append(queues, q)
	}
	return queues
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	inboxName    = "INBOX"
	inflightName = "IN-FLIGHT"
	ledgerName   = "IN-FLIGHT-KEYS"

	// moveChunkSize bounds how many items a single Lua list move touches so a
	// huge poll cannot stall the Redis server.
	moveChunkSize = 100
)

// pollScript atomically moves up to ARGV[4] items from the inbox head into a
// fresh in-flight list, chunked, preserving publish order, and records the
// in-flight key in the lane ledger scored by poll time.
var pollScript = goredis.NewScript(`
local src = ARGV[1]
local dst = ARGV[2]
local ledger = ARGV[3]
local limit = tonumber(ARGV[4])
local now = tonumber(ARGV[5])

local total = math.min(tonumber(redis.call("LLEN", src)), limit)
local moved = {}
local j = 0

while j < total do
  local chunk = math.min(100, total - j)
  local l = redis.call("LRANGE", src, 0, chunk - 1)
  if #l == 0 then break end
  redis.call("RPUSH", dst, unpack(l))
  redis.call("LTRIM", src, chunk, -1)
  for i = 1, #l do moved[#moved + 1] = l[i] end
  j = j + chunk
end

if #moved > 0 then
  redis.call("ZADD", ledger, now, dst)
end

return moved
`)

// ackScript deletes an in-flight list and drops it from the ledger.
var ackScript = goredis.NewScript(`
redis.call("DEL", ARGV[2])
redis.call("ZREM", ARGV[1], ARGV[2])
return 1
`)

// reclaimScript moves every item of expired in-flight lists back onto the
// inbox head, preserving their original order, and clears the ledger entries.
var reclaimScript = goredis.NewScript(`
local ledger = ARGV[1]
local inbox = ARGV[2]
local cutoff = ARGV[3]
local maxLists = tonumber(ARGV[4])

local expired = redis.call("ZRANGEBYSCORE", ledger, "-inf", cutoff, "LIMIT", 0, maxLists)
local requeued = 0

for _, key in ipairs(expired) do
  local v = redis.call("RPOPLPUSH", key, inbox)
  while v do
    requeued = requeued + 1
    v = redis.call("RPOPLPUSH", key, inbox)
  end
  redis.call("ZREM", ledger, key)
end

return requeued
`)

var _ Queue = (*RedisQueue)(nil)

// RedisQueue is a durable queue lane backed by Redis lists. All mutations of
// the inbox and in-flight lists go through server-side Lua so concurrent
// pollers never hand the same item to two receipts.
type RedisQueue struct {
	client *goredis.Client
	lane   string
	now    func() time.Time
}

func NewRedisQueue(client *goredis.Client, lane string) (*RedisQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	lane = strings.TrimSpace(lane)
	if lane == "" {
		return nil, fmt.Errorf("lane name is required")
	}

	return &RedisQueue{
		client: client,
		lane:   lane,
		now:    time.Now,
	}, nil
}

func (q *RedisQueue) Lane() string { return q.lane }

func (q *RedisQueue) inboxKey() string {
	return fmt.Sprintf("%s:%s", inboxName, q.lane)
}

func (q *RedisQueue) ledgerKey() string {
	return fmt.Sprintf("%s:%s", ledgerName, q.lane)
}

func (q *RedisQueue) inflightKey(receipt uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", inflightName, q.lane, receipt)
}

// Publish serializes item to JSON and appends it to the inbox tail.
func (q *RedisQueue) Publish(ctx context.Context, item any) error {
	if q == nil || q.client == nil {
		return fmt.Errorf("queue is not initialized")
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}

	if err := q.client.RPush(ctx, q.inboxKey(), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to lane %q: %w", q.lane, err)
	}
	return nil
}

// Poll atomically checks out up to count items from the inbox head under a
// fresh receipt. Items come back in publish order. An empty inbox yields a
// receipt with no items.
func (q *RedisQueue) Poll(ctx context.Context, count int) (uuid.UUID, [][]byte, error) {
	if q == nil || q.client == nil {
		return uuid.Nil, nil, fmt.Errorf("queue is not initialized")
	}
	if count < 1 {
		return uuid.Nil, nil, fmt.Errorf("poll count must be positive")
	}

	receipt := uuid.New()
	raw, err := pollScript.Run(ctx, q.client, nil,
		q.inboxKey(),
		q.inflightKey(receipt),
		q.ledgerKey(),
		count,
		q.now().Unix(),
	).StringSlice()
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to poll lane %q: %w", q.lane, err)
	}

	items := make([][]byte, 0, len(raw))
	for _, item := range raw {
		items = append(items, []byte(item))
	}
	return receipt, items, nil
}

// Acknowledge deletes the in-flight list named by receipt. Acknowledging an
// unknown or already-acknowledged receipt is a no-op.
func (q *RedisQueue) Acknowledge(ctx context.Context, receipt uuid.UUID) error {
	if q == nil || q.client == nil {
		return fmt.Errorf("queue is not initialized")
	}

	err := ackScript.Run(ctx, q.client, nil, q.ledgerKey(), q.inflightKey(receipt)).Err()
	if err != nil {
		return fmt.Errorf("failed to acknowledge receipt %s on lane %q: %w", receipt, q.lane, err)
	}
	return nil
}

// ReclaimExpired requeues items from in-flight lists polled before the
// visibility timeout onto the inbox head, up to maxLists lists per sweep.
// Returns the number of requeued items.
func (q *RedisQueue) ReclaimExpired(ctx context.Context, visibilityTimeout time.Duration, maxLists int) (int, error) {
	if q == nil || q.client == nil {
		return 0, fmt.Errorf("queue is not initialized")
	}
	if maxLists < 1 {
		maxLists = 1
	}

	cutoff := q.now().Add(-visibilityTimeout).Unix()
	requeued, err := reclaimScript.Run(ctx, q.client, nil,
		q.ledgerKey(),
		q.inboxKey(),
		cutoff,
		maxLists,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim lane %q: %w", q.lane, err)
	}
	return requeued, nil
}

// Depth reports the number of pending items in the inbox.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	if q == nil || q.client == nil {
		return 0, fmt.Errorf("queue is not initialized")
	}
	depth, err := q.client.LLen(ctx, q.inboxKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read depth of lane %q: %w", q.lane, err)
	}
	return depth, nil
}

// InFlight reports how many unacknowledged in-flight lists the lane holds.
func (q *RedisQueue) InFlight(ctx context.Context) (int64, error) {
	if q == nil || q.client == nil {
		return 0, fmt.Errorf("queue is not initialized")
	}
	n, err := q.client.ZCard(ctx, q.ledgerKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read in-flight count of lane %q: %w", q.lane, err)
	}
	return n, nil
}

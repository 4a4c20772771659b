package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// blockTimeout bounds each BLMOVE wait so Dequeue can notice a cancelled
// context between polls.
const blockTimeout = 5 * time.Second

// RedisQueue implements Queue on a Redis list pair plus a lease set.
//
// Enqueue pushes the JSON payload onto a pending list. Dequeue atomically
// moves it to a processing list (so a crash between dequeue and ack never
// loses it) and records a lease deadline in a sorted set. Ack removes both.
// RequeueExpired moves entries whose lease has lapsed back to pending, which
// is what makes delivery at-least-once.
type RedisQueue struct {
	client *redis.Client
	lease  time.Duration
}

// NewRedisQueue creates a RedisQueue from a Redis URL. The lease must exceed
// the worker's hard execution timeout so live attempts are never redelivered.
func NewRedisQueue(redisURL string, lease time.Duration) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisQueue{client: redis.NewClient(opts), lease: lease}, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dispatch message: %w", err)
	}
	if err := q.client.LPush(ctx, pendingKey, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Dequeue blocks until a message is available or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		payload, err := q.client.BLMove(ctx, pendingKey, processingKey, "RIGHT", "LEFT", blockTimeout).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		deadline := float64(time.Now().Add(q.lease).Unix())
		if err := q.client.ZAdd(ctx, leasesKey, redis.Z{Score: deadline, Member: payload}).Err(); err != nil {
			return nil, fmt.Errorf("%w: record lease: %v", ErrUnavailable, err)
		}

		var msg Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			// Poison payload: drop it so it cannot loop through redelivery.
			q.client.LRem(ctx, processingKey, 1, payload)
			q.client.ZRem(ctx, leasesKey, payload)
			return nil, fmt.Errorf("unmarshal dispatch message: %w", err)
		}

		return &Delivery{Message: msg, payload: payload}, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, processingKey, 1, d.payload)
	pipe.ZRem(ctx, leasesKey, d.payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: ack: %v", ErrUnavailable, err)
	}
	return nil
}

// RequeueExpired moves messages whose lease has lapsed back onto the pending
// list and returns how many were moved. Safe to run from multiple processes;
// ZRem reports whether this caller owned the removal.
func (q *RedisQueue) RequeueExpired(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	expired, err := q.client.ZRangeByScore(ctx, leasesKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: scan leases: %v", ErrUnavailable, err)
	}

	moved := 0
	for _, payload := range expired {
		removed, err := q.client.ZRem(ctx, leasesKey, payload).Result()
		if err != nil {
			return moved, fmt.Errorf("%w: release lease: %v", ErrUnavailable, err)
		}
		if removed == 0 {
			continue // another reaper got it first
		}
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, processingKey, 1, payload)
		pipe.LPush(ctx, pendingKey, payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return moved, fmt.Errorf("%w: requeue: %v", ErrUnavailable, err)
		}
		moved++
	}
	return moved, nil
}

// IncrWithExpiry increments a counter and refreshes its TTL in one round
// trip. Used by the API's rate-limit middleware.
func (q *RedisQueue) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := q.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

var _ Queue = (*RedisQueue)(nil)
var _ Limiter = (*RedisQueue)(nil)

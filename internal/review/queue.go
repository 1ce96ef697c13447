// Package review drives the asynchronous evaluation pipeline: a poller
// claims pending jobs onto a work queue, a worker pool evaluates them via
// the external evaluator, and operators can override persisted verdicts.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue is the FIFO work queue of job ids awaiting evaluation. Dequeue
// must be safe for concurrent consumers: each pushed id is delivered to at
// most one of them.
type Queue interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) error
	// Dequeue blocks up to wait for an item. ok=false means the queue was
	// empty for the whole wait.
	Dequeue(ctx context.Context, wait time.Duration) (jobID uuid.UUID, ok bool, err error)
	Depth(ctx context.Context) (int64, error)
}

// redisQueue implements Queue on a Redis list (LPUSH / BRPOP).
type redisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue returns a Redis-backed queue. key is the list name, e.g.
// "jobradar:review_queue".
func NewRedisQueue(rdb *redis.Client, key string) Queue {
	return &redisQueue{rdb: rdb, key: key}
}

func (q *redisQueue) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	if err := q.rdb.LPush(ctx, q.key, jobID.String()).Err(); err != nil {
		return fmt.Errorf("enqueueing %s: %w", jobID, err)
	}
	return nil
}

func (q *redisQueue) Dequeue(ctx context.Context, wait time.Duration) (uuid.UUID, bool, error) {
	res, err := q.rdb.BRPop(ctx, wait, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("dequeueing: %w", err)
	}
	// BRPOP returns [key, value].
	id, err := uuid.Parse(res[1])
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("malformed queue entry %q: %w", res[1], err)
	}
	return id, true, nil
}

func (q *redisQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("reading queue depth: %w", err)
	}
	return n, nil
}

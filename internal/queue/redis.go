package queue

import (
	"context"
	"fmt"

	"github.com/feral-file/ff-entity-indexer/internal/adapter"
)

type redisQueue struct {
	client adapter.RedisClient
}

// NewRedisQueue creates a queue backed by redis lists
func NewRedisQueue(client adapter.RedisClient) Queue {
	return &redisQueue{client: client}
}

func (q *redisQueue) Push(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}

	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := q.client.RPush(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return nil
}

func (q *redisQueue) Range(ctx context.Context, key string, start, end int64) ([]string, error) {
	values, err := q.client.LRange(ctx, key, start, end).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read range of %s: %w", key, err)
	}
	return values, nil
}

func (q *redisQueue) Trim(ctx context.Context, key string, start, end int64) error {
	if err := q.client.LTrim(ctx, key, start, end).Err(); err != nil {
		return fmt.Errorf("failed to trim %s: %w", key, err)
	}
	return nil
}

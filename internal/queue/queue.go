// Package queue provides the durable ordered lists used by the challenge event bus.
// Indexes follow redis list semantics: both ends are inclusive and negative
// indexes count from the tail (-1 is the last element).
package queue

import (
	"context"
	"fmt"

	"github.com/feral-file/ff-entity-indexer/internal/adapter"
)

const (
	BackendRedis = "redis"
	BackendBolt  = "bolt"
)

// Queue is a durable FIFO list store
type Queue interface {
	// Push appends values to the tail of the list at key
	Push(ctx context.Context, key string, values ...string) error
	// Range returns the elements between start and end
	Range(ctx context.Context, key string, start, end int64) ([]string, error)
	// Trim keeps only the elements between start and end
	Trim(ctx context.Context, key string, start, end int64) error
}

// Open returns the queue for backend along with a func releasing it.
// The redis client is only used by the redis backend and may be nil otherwise.
func Open(backend string, boltPath string, client adapter.RedisClient) (Queue, func() error, error) {
	switch backend {
	case BackendBolt:
		q, err := OpenBoltQueue(boltPath)
		if err != nil {
			return nil, nil, err
		}
		return q, q.Close, nil
	case BackendRedis, "":
		if client == nil {
			return nil, nil, fmt.Errorf("redis queue requires a redis client")
		}
		return NewRedisQueue(client), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", backend)
	}
}

// normalizeRange converts redis style indexes into a half-open [from, to) window over n elements
func normalizeRange(start, end int64, n int) (int, int) {
	size := int64(n)
	if start < 0 {
		start += size
	}
	if end < 0 {
		end += size
	}
	start = max(start, 0)
	end = min(end, size-1)
	if start > end || start >= size {
		return 0, 0
	}
	return int(start), int(end) + 1
}

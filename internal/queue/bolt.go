package queue

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltQueue is a Queue stored in a local bbolt file
type BoltQueue struct {
	db *bolt.DB
}

// OpenBoltQueue opens a queue stored in a local bbolt file, one bucket per key.
// It suits single node deployments and tests.
func OpenBoltQueue(path string) (*BoltQueue, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt queue: %w", err)
	}
	return &BoltQueue{db: db}, nil
}

// Close closes the underlying bolt file
func (q *BoltQueue) Close() error {
	return q.db.Close()
}

func (q *BoltQueue) Push(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}

	err := q.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		for _, v := range values {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			if err := b.Put(itob(seq), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return nil
}

func (q *BoltQueue) Range(ctx context.Context, key string, start, end int64) ([]string, error) {
	var values []string
	err := q.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(key))
		if b == nil {
			return nil
		}

		all := make([]string, 0, b.Stats().KeyN)
		if err := b.ForEach(func(_, v []byte) error {
			all = append(all, string(v))
			return nil
		}); err != nil {
			return err
		}

		from, to := normalizeRange(start, end, len(all))
		values = all[from:to]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read range of %s: %w", key, err)
	}
	return values, nil
}

func (q *BoltQueue) Trim(ctx context.Context, key string, start, end int64) error {
	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(key))
		if b == nil {
			return nil
		}

		var keys [][]byte
		if err := b.ForEach(func(k, _ []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}

		from, to := normalizeRange(start, end, len(keys))
		for i, k := range keys {
			if i >= from && i < to {
				continue
			}
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to trim %s: %w", key, err)
	}
	return nil
}

// itob encodes a sequence big endian so that bolt's byte order matches insertion order
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

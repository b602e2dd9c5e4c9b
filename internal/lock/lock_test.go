package lock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/lock"
	"github.com/feral-file/ff-entity-indexer/internal/mocks"
)

func readyAfter() <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestRedisLocker_NonBlocking(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	client := mocks.NewMockRedisClient(ctrl)
	clock := mocks.NewMockClock(ctrl)
	l := lock.NewRedisLocker(client, clock, 0)

	t.Run("acquire and release", func(t *testing.T) {
		var token interface{}
		client.EXPECT().SetNX(ctx, "lock:sync", gomock.Any(), lock.DefaultTTL).
			DoAndReturn(func(_ context.Context, _ string, value interface{}, _ time.Duration) *redis.BoolCmd {
				token = value
				return redis.NewBoolResult(true, nil)
			})

		ok, err := l.Acquire(ctx, "sync", lock.Options{})
		require.NoError(t, err)
		assert.True(t, ok)

		client.EXPECT().Eval(ctx, gomock.Any(), []string{"lock:sync"}, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, _ []string, args ...interface{}) *redis.Cmd {
				require.Len(t, args, 1)
				assert.Equal(t, token, args[0])
				return redis.NewCmdResult(int64(1), nil)
			})
		require.NoError(t, l.Release(ctx, "sync"))
	})

	t.Run("lost race is not an error", func(t *testing.T) {
		client.EXPECT().SetNX(ctx, "lock:sync", gomock.Any(), 5*time.Second).Return(redis.NewBoolResult(false, nil))

		ok, err := l.Acquire(ctx, "sync", lock.Options{TTL: 5 * time.Second})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("release of a lock not held is a no-op", func(t *testing.T) {
		require.NoError(t, l.Release(ctx, "other"))
	})

	t.Run("redis error", func(t *testing.T) {
		client.EXPECT().SetNX(ctx, "lock:sync", gomock.Any(), lock.DefaultTTL).Return(redis.NewBoolResult(false, errors.New("connection refused")))

		ok, err := l.Acquire(ctx, "sync", lock.Options{})
		require.Error(t, err)
		assert.False(t, ok)
	})
}

func TestRedisLocker_Blocking(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	client := mocks.NewMockRedisClient(ctrl)
	clock := mocks.NewMockClock(ctrl)
	l := lock.NewRedisLocker(client, clock, time.Minute)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("acquires after retry", func(t *testing.T) {
		clock.EXPECT().Now().Return(start).Times(2)
		clock.EXPECT().After(lock.DefaultRetryInterval).Return(readyAfter())
		gomock.InOrder(
			client.EXPECT().SetNX(ctx, "lock:job", gomock.Any(), time.Minute).Return(redis.NewBoolResult(false, nil)),
			client.EXPECT().SetNX(ctx, "lock:job", gomock.Any(), time.Minute).Return(redis.NewBoolResult(true, nil)),
		)

		ok, err := l.Acquire(ctx, "job", lock.Options{Blocking: true, Timeout: time.Second})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("times out", func(t *testing.T) {
		gomock.InOrder(
			clock.EXPECT().Now().Return(start),
			clock.EXPECT().Now().Return(start.Add(2*time.Second)),
		)
		client.EXPECT().SetNX(ctx, "lock:busy", gomock.Any(), time.Minute).Return(redis.NewBoolResult(false, nil))

		ok, err := l.Acquire(ctx, "busy", lock.Options{Blocking: true, Timeout: time.Second})
		assert.False(t, ok)
		assert.ErrorIs(t, err, domain.ErrLockNotAcquired)
	})
}

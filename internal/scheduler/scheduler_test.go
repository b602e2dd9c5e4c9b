package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-entity-indexer/internal/lock"
	"github.com/feral-file/ff-entity-indexer/internal/mocks"
	"github.com/feral-file/ff-entity-indexer/internal/scheduler"
)

type fakeProcessor struct {
	n      int
	failed bool
	calls  atomic.Int32
	max    int
}

func (f *fakeProcessor) ProcessEvents(_ context.Context, maxEvents int) (int, bool) {
	f.calls.Add(1)
	f.max = maxEvents
	return f.n, f.failed
}

func TestScheduler_RunJob(t *testing.T) {
	ctx := context.Background()
	ttl := 30 * time.Second

	t.Run("runs the job under its lock", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		locker := mocks.NewMockLocker(ctrl)

		gomock.InOrder(
			locker.EXPECT().Acquire(gomock.Any(), "job", lock.Options{TTL: ttl}).Return(true, nil),
			locker.EXPECT().Release(gomock.Any(), "job").Return(nil),
		)

		ran := false
		s := scheduler.New(locker, ttl)
		ok, err := s.RunJob(ctx, scheduler.Job{Name: "job", Interval: time.Second, Run: func(context.Context) error {
			ran = true
			return nil
		}})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, ran)
	})

	t.Run("skips when another process holds the lock", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		locker := mocks.NewMockLocker(ctrl)

		locker.EXPECT().Acquire(gomock.Any(), "job", gomock.Any()).Return(false, nil)

		s := scheduler.New(locker, ttl)
		ok, err := s.RunJob(ctx, scheduler.Job{Name: "job", Interval: time.Second, Run: func(context.Context) error {
			t.Fatal("job must not run")
			return nil
		}})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("reports lock errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		locker := mocks.NewMockLocker(ctrl)

		locker.EXPECT().Acquire(gomock.Any(), "job", gomock.Any()).Return(false, errors.New("redis down"))

		s := scheduler.New(locker, ttl)
		ok, err := s.RunJob(ctx, scheduler.Job{Name: "job", Interval: time.Second, Run: func(context.Context) error {
			return nil
		}})
		require.Error(t, err)
		assert.False(t, ok)
	})

	t.Run("releases the lock when the job fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		locker := mocks.NewMockLocker(ctrl)

		locker.EXPECT().Acquire(gomock.Any(), "job", gomock.Any()).Return(true, nil)
		locker.EXPECT().Release(gomock.Any(), "job").Return(nil)

		s := scheduler.New(locker, ttl)
		ok, err := s.RunJob(ctx, scheduler.Job{Name: "job", Interval: time.Second, Run: func(context.Context) error {
			return errors.New("boom")
		}})
		require.ErrorContains(t, err, "boom")
		assert.True(t, ok)
	})

	t.Run("local jobs run without a lock", func(t *testing.T) {
		ran := false
		s := scheduler.New(nil, ttl)
		ok, err := s.RunJob(ctx, scheduler.Job{Name: "job", Interval: time.Second, Local: true, Run: func(context.Context) error {
			ran = true
			return nil
		}})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, ran)
	})
}

func TestScheduler_Add(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	s := scheduler.New(mocks.NewMockLocker(ctrl), time.Second)

	assert.Error(t, s.Add(scheduler.Job{Interval: time.Second, Run: func(context.Context) error { return nil }}))
	assert.Error(t, s.Add(scheduler.Job{Name: "job", Run: func(context.Context) error { return nil }}))
	assert.Error(t, s.Add(scheduler.Job{Name: "job", Interval: time.Second}))
	assert.NoError(t, s.Add(scheduler.Job{Name: "job", Interval: time.Second, Run: func(context.Context) error { return nil }}))

	// Locked jobs need a locker
	local := scheduler.New(nil, time.Second)
	assert.Error(t, local.Add(scheduler.Job{Name: "job", Interval: time.Second, Run: func(context.Context) error { return nil }}))
	assert.NoError(t, local.Add(scheduler.Job{Name: "job", Interval: time.Second, Local: true, Run: func(context.Context) error { return nil }}))
}

func TestScheduler_StartStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	locker := mocks.NewMockLocker(ctrl)
	locker.EXPECT().Acquire(gomock.Any(), "tick", gomock.Any()).Return(true, nil).AnyTimes()
	locker.EXPECT().Release(gomock.Any(), "tick").Return(nil).AnyTimes()

	var runs atomic.Int32
	s := scheduler.New(locker, time.Second)
	require.NoError(t, s.Add(scheduler.Job{Name: "tick", Interval: time.Second, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool { return runs.Load() > 0 }, 5*time.Second, 50*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, <-done)

	// A second stop is a no-op
	require.NoError(t, s.Stop(stopCtx))
}

func TestChallengeEventsJob(t *testing.T) {
	p := &fakeProcessor{n: 3}
	job := scheduler.ChallengeEventsJob(p, 500, 10*time.Second)
	assert.Equal(t, scheduler.JobChallengeEvents, job.Name)
	assert.Equal(t, 10*time.Second, job.Interval)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 500, p.max)
	assert.Equal(t, int32(1), p.calls.Load())

	p.failed = true
	assert.Error(t, job.Run(context.Background()))
}

func TestBlacklistSyncJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	blacklist := mocks.NewMockCIDBlacklist(ctrl)

	job := scheduler.BlacklistSyncJob(blacklist, time.Minute)
	assert.Equal(t, scheduler.JobBlacklistSync, job.Name)
	assert.True(t, job.Local)

	blacklist.EXPECT().Reload().Return(nil)
	require.NoError(t, job.Run(context.Background()))

	blacklist.EXPECT().Reload().Return(errors.New("bad file"))
	require.Error(t, job.Run(context.Background()))
}

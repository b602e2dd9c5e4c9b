package block_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-entity-indexer/internal/block"
	"github.com/feral-file/ff-entity-indexer/internal/mocks"
)

type testHeadMocks struct {
	ctrl     *gomock.Controller
	fetcher  *mocks.MockLogSource
	clock    *mocks.MockClock
	provider *block.HeadProvider
}

func setupTest(t *testing.T) *testHeadMocks {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockLogSource(ctrl)
	clock := mocks.NewMockClock(ctrl)

	return &testHeadMocks{
		ctrl:    ctrl,
		fetcher: fetcher,
		clock:   clock,
		provider: block.NewHeadProvider(fetcher, block.Config{
			TTL:         10 * time.Second,
			StaleWindow: 2 * time.Minute,
		}, clock),
	}
}

var now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestHeadProvider_LatestBlock(t *testing.T) {
	ctx := context.Background()

	t.Run("first fetch", func(t *testing.T) {
		tm := setupTest(t)
		defer tm.ctrl.Finish()

		tm.clock.EXPECT().Now().Return(now)
		tm.fetcher.EXPECT().LatestBlock(ctx).Return(uint64(1000), nil)

		n, err := tm.provider.LatestBlock(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), n)
	})

	t.Run("cache within TTL", func(t *testing.T) {
		tm := setupTest(t)
		defer tm.ctrl.Finish()

		tm.clock.EXPECT().Now().Return(now)
		tm.fetcher.EXPECT().LatestBlock(ctx).Return(uint64(1000), nil)
		_, err := tm.provider.LatestBlock(ctx)
		require.NoError(t, err)

		// fetcher is called only once
		tm.clock.EXPECT().Now().Return(now.Add(5 * time.Second))
		n, err := tm.provider.LatestBlock(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), n)
	})

	t.Run("refresh after TTL", func(t *testing.T) {
		tm := setupTest(t)
		defer tm.ctrl.Finish()

		tm.clock.EXPECT().Now().Return(now)
		tm.fetcher.EXPECT().LatestBlock(ctx).Return(uint64(1000), nil)
		_, err := tm.provider.LatestBlock(ctx)
		require.NoError(t, err)

		tm.clock.EXPECT().Now().Return(now.Add(15 * time.Second))
		tm.fetcher.EXPECT().LatestBlock(ctx).Return(uint64(1100), nil)
		n, err := tm.provider.LatestBlock(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1100), n)
	})

	t.Run("stale head within the stale window", func(t *testing.T) {
		tm := setupTest(t)
		defer tm.ctrl.Finish()

		tm.clock.EXPECT().Now().Return(now)
		tm.fetcher.EXPECT().LatestBlock(ctx).Return(uint64(1000), nil)
		_, err := tm.provider.LatestBlock(ctx)
		require.NoError(t, err)

		tm.clock.EXPECT().Now().Return(now.Add(30 * time.Second))
		tm.fetcher.EXPECT().LatestBlock(ctx).Return(uint64(0), errors.New("network error"))
		n, err := tm.provider.LatestBlock(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), n)
	})

	t.Run("no cache and fetch fails", func(t *testing.T) {
		tm := setupTest(t)
		defer tm.ctrl.Finish()

		tm.clock.EXPECT().Now().Return(now)
		tm.fetcher.EXPECT().LatestBlock(ctx).Return(uint64(0), errors.New("network error"))
		_, err := tm.provider.LatestBlock(ctx)
		require.ErrorContains(t, err, "no valid cache available")
	})

	t.Run("cache beyond the stale window", func(t *testing.T) {
		tm := setupTest(t)
		defer tm.ctrl.Finish()

		tm.clock.EXPECT().Now().Return(now)
		tm.fetcher.EXPECT().LatestBlock(ctx).Return(uint64(1000), nil)
		_, err := tm.provider.LatestBlock(ctx)
		require.NoError(t, err)

		tm.clock.EXPECT().Now().Return(now.Add(5 * time.Minute))
		tm.fetcher.EXPECT().LatestBlock(ctx).Return(uint64(0), errors.New("network error"))
		_, err = tm.provider.LatestBlock(ctx)
		require.ErrorContains(t, err, "no valid cache available")
	})

	t.Run("zero TTL always fetches", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		fetcher := mocks.NewMockLogSource(ctrl)
		clock := mocks.NewMockClock(ctrl)
		provider := block.NewHeadProvider(fetcher, block.Config{}, clock)

		clock.EXPECT().Now().Return(now).Times(2)
		fetcher.EXPECT().LatestBlock(ctx).Return(uint64(7), nil)
		fetcher.EXPECT().LatestBlock(ctx).Return(uint64(8), nil)

		n, err := provider.LatestBlock(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), n)
		n, err = provider.LatestBlock(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(8), n)
	})
}

func TestHeadProvider_ConcurrentAccess(t *testing.T) {
	tm := setupTest(t)
	defer tm.ctrl.Finish()
	ctx := context.Background()

	tm.fetcher.EXPECT().LatestBlock(ctx).Return(uint64(1000), nil).AnyTimes()
	tm.clock.EXPECT().Now().Return(now).AnyTimes()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := tm.provider.LatestBlock(ctx)
			assert.NoError(t, err)
			assert.Equal(t, uint64(1000), n)
		}()
	}
	wg.Wait()
}

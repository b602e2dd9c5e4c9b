// Package block caches the chain head so a catching-up indexer does not ask
// the RPC node for the latest block on every batch.
package block

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-entity-indexer/internal/adapter"
	"github.com/feral-file/ff-entity-indexer/internal/logger"
)

// HeadFetcher reads the latest block number from the chain
type HeadFetcher interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

// Config holds configuration for the head provider
type Config struct {
	// TTL is how long a fetched head is served without asking the chain.
	// Zero disables caching.
	TTL time.Duration

	// StaleWindow is how long a cached head may stand in for a failed fetch
	StaleWindow time.Duration
}

type head struct {
	number    uint64
	fetchedAt time.Time
}

// HeadProvider serves the latest block number from a TTL cache
type HeadProvider struct {
	fetcher HeadFetcher
	config  Config
	clock   adapter.Clock

	mu     sync.RWMutex
	cached *head
}

// NewHeadProvider creates a head provider over fetcher
func NewHeadProvider(fetcher HeadFetcher, config Config, clock adapter.Clock) *HeadProvider {
	return &HeadProvider{
		fetcher: fetcher,
		config:  config,
		clock:   clock,
	}
}

// LatestBlock returns the latest block number, using the cache while it is fresh
func (p *HeadProvider) LatestBlock(ctx context.Context) (uint64, error) {
	p.mu.RLock()
	cached := p.cached
	p.mu.RUnlock()

	now := p.clock.Now()
	if cached != nil && now.Sub(cached.fetchedAt) < p.config.TTL {
		return cached.number, nil
	}

	number, err := p.fetcher.LatestBlock(ctx)
	if err != nil {
		if cached != nil && now.Sub(cached.fetchedAt) < p.config.StaleWindow {
			logger.WarnCtx(ctx, "Using stale chain head", zap.Uint64("block_number", cached.number), zap.Error(err))
			return cached.number, nil
		}
		return 0, fmt.Errorf("failed to fetch latest block and no valid cache available: %w", err)
	}

	p.mu.Lock()
	// A slower concurrent fetch must not move the head backwards
	if p.cached == nil || number >= p.cached.number {
		p.cached = &head{number: number, fetchedAt: now}
	}
	p.mu.Unlock()

	return number, nil
}

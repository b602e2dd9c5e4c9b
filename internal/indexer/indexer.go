// Package indexer drives the entity manager from the chain: it reads blocks
// of ManageEntity logs, applies them and announces committed blocks
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-entity-indexer/internal/adapter"
	"github.com/feral-file/ff-entity-indexer/internal/block"
	"github.com/feral-file/ff-entity-indexer/internal/challenges"
	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/entitymanager"
	"github.com/feral-file/ff-entity-indexer/internal/logger"
	"github.com/feral-file/ff-entity-indexer/internal/metadata"
	"github.com/feral-file/ff-entity-indexer/internal/providers/ethereum"
	"github.com/feral-file/ff-entity-indexer/internal/providers/jetstream"
	"github.com/feral-file/ff-entity-indexer/internal/registry"
	"github.com/feral-file/ff-entity-indexer/internal/store"
)

// Config holds the driver loop configuration
type Config struct {
	// CursorName names the persisted cursor, shared with the entity manager
	CursorName string
	// StartBlock is the first block indexed when no cursor exists
	StartBlock   uint64
	BatchSize    uint64
	PollInterval time.Duration
	// HeadTTL caches the chain head between batches while catching up. Zero disables it.
	HeadTTL time.Duration
}

// BlockApplier applies one block of transactions
type BlockApplier interface {
	ApplyBlock(ctx context.Context, in entitymanager.BlockInput) (*entitymanager.BlockResult, error)
}

// ScopedDispatcher hands out a challenge event batch flushed when the scope ends.
// Flush retries events left over from a failed scope.
type ScopedDispatcher interface {
	UseScopedDispatchQueue(ctx context.Context, fn func(batch *challenges.Batch) error) error
	Flush(ctx context.Context) error
}

// Indexer is the driver loop
type Indexer struct {
	config    Config
	source    ethereum.LogSource
	head      *block.HeadProvider
	cursors   store.CursorStore
	manager   BlockApplier
	fetcher   metadata.Fetcher
	bus       ScopedDispatcher
	publisher jetstream.Publisher
	blacklist registry.CIDBlacklist
	clock     adapter.Clock
}

// New creates an indexer. publisher and blacklist are optional.
func New(
	cfg Config,
	source ethereum.LogSource,
	cursors store.CursorStore,
	manager BlockApplier,
	fetcher metadata.Fetcher,
	bus ScopedDispatcher,
	publisher jetstream.Publisher,
	blacklist registry.CIDBlacklist,
	clock adapter.Clock,
) *Indexer {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Indexer{
		config:    cfg,
		source:    source,
		head:      block.NewHeadProvider(source, block.Config{TTL: cfg.HeadTTL, StaleWindow: 2 * cfg.HeadTTL}, clock),
		cursors:   cursors,
		manager:   manager,
		fetcher:   fetcher,
		bus:       bus,
		publisher: publisher,
		blacklist: blacklist,
		clock:     clock,
	}
}

// Run indexes until ctx is canceled. Failed ticks are retried after the poll interval.
func (ix *Indexer) Run(ctx context.Context) error {
	logger.InfoCtx(ctx, "Starting indexer",
		zap.String("cursor", ix.config.CursorName),
		zap.Uint64("start_block", ix.config.StartBlock),
		zap.Uint64("batch_size", ix.config.BatchSize))

	for {
		caughtUp, err := ix.Tick(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			logger.ErrorCtx(ctx, err)
		}

		if err == nil && !caughtUp {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Indexer stopping due to context cancellation")
			return nil
		case <-ix.clock.After(ix.config.PollInterval):
		}
	}
}

// Tick indexes the next range of blocks after the cursor. It reports whether
// the indexer has reached the chain head.
func (ix *Indexer) Tick(ctx context.Context) (bool, error) {
	// Challenge events of committed blocks go out before any newer block
	if err := ix.bus.Flush(ctx); err != nil {
		return false, err
	}

	cursor, err := ix.cursors.GetBlockCursor(ctx, ix.config.CursorName)
	if err != nil {
		return false, err
	}
	next := cursor + 1
	if next < ix.config.StartBlock {
		next = ix.config.StartBlock
	}

	latest, err := ix.head.LatestBlock(ctx)
	if err != nil {
		return false, err
	}
	if next > latest {
		return true, nil
	}
	to := min(latest, next+ix.config.BatchSize-1)

	blocks, err := ix.source.FetchBlocks(ctx, next, to)
	if err != nil {
		return false, err
	}

	for _, b := range blocks {
		if err := ix.processBlock(ctx, b); err != nil {
			return false, err
		}
	}

	// Blocks without ManageEntity logs still move the cursor
	if len(blocks) == 0 || blocks[len(blocks)-1].Number < to {
		if err := ix.cursors.SetBlockCursor(ctx, ix.config.CursorName, to); err != nil {
			return false, err
		}
	}

	logger.DebugCtx(ctx, "Indexed block range",
		zap.Uint64("from", next),
		zap.Uint64("to", to),
		zap.Int("blocks", len(blocks)))
	return to == latest, nil
}

// processBlock prefetches the metadata of a block, applies it and publishes the result
func (ix *Indexer) processBlock(ctx context.Context, b domain.Block) error {
	in := entitymanager.BlockInput{
		Transactions:   b.Transactions,
		BlockNumber:    b.Number,
		BlockTimestamp: b.Timestamp,
		BlockHash:      b.Hash,
	}
	if cids := ix.collectCIDs(b); len(cids) > 0 && ix.fetcher != nil {
		// Applying without the documents would skip their transactions for good,
		// so the block waits for the gateways instead
		data, err := ix.fetcher.Prefetch(ctx, cids)
		if err != nil {
			return fmt.Errorf("block %d: %w", b.Number, err)
		}
		in.MetadataByCID = data
	}

	var (
		result   *entitymanager.BlockResult
		applyErr error
	)
	err := ix.bus.UseScopedDispatchQueue(ctx, func(batch *challenges.Batch) error {
		in.Dispatcher = batch
		result, applyErr = ix.manager.ApplyBlock(ctx, in)
		return applyErr
	})
	if applyErr != nil {
		return applyErr
	}
	if err != nil {
		// The block is committed; its challenge events stay on the bus for the next tick
		logger.ErrorCtx(ctx, fmt.Errorf("failed to flush challenge events of block %d: %w", b.Number, err))
	}

	ix.publish(ctx, b, result)
	return nil
}

func (ix *Indexer) publish(ctx context.Context, b domain.Block, result *entitymanager.BlockResult) {
	if ix.publisher == nil || result == nil {
		return
	}

	changed := make(map[string][]string, len(result.ChangedEntityIDs))
	for t, ids := range result.ChangedEntityIDs {
		changed[string(t)] = ids
	}
	event := domain.BlockIndexed{
		BlockNumber:      b.Number,
		BlockHash:        b.Hash,
		NumChanges:       result.NumChanges,
		ChangedEntityIDs: changed,
		IndexedAt:        ix.clock.Now().UTC(),
	}
	if err := ix.publisher.PublishBlockIndexed(ctx, event); err != nil {
		logger.WarnCtx(ctx, "Failed to publish block indexed event",
			zap.Uint64("block_number", b.Number),
			zap.Error(err))
	}
}

// collectCIDs returns the metadata CIDs of a block that must be fetched.
// Inline metadata and blacklisted CIDs are left out.
func (ix *Indexer) collectCIDs(b domain.Block) []string {
	seen := make(map[string]bool)
	var cids []string
	for _, tx := range b.Transactions {
		for _, ev := range tx.Events {
			p := metadata.ParsePayload(ev.Metadata)
			if p.CID == "" || len(p.Data) > 0 || seen[p.CID] {
				continue
			}
			if ix.blacklist != nil && ix.blacklist.IsBlacklisted(p.CID) {
				continue
			}
			seen[p.CID] = true
			cids = append(cids, p.CID)
		}
	}
	return cids
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-entity-indexer/internal/logger"
	"github.com/feral-file/ff-entity-indexer/internal/registry"
)

const (
	JobChallengeEvents = "challenge-events"
	JobBlacklistSync   = "blacklist-sync"
)

// EventProcessor drains challenge events from the durable queue
type EventProcessor interface {
	ProcessEvents(ctx context.Context, maxEvents int) (int, bool)
}

// ChallengeEventsJob pops up to maxEvents challenge events per tick and hands
// them to the challenge listeners
func ChallengeEventsJob(bus EventProcessor, maxEvents int, interval time.Duration) Job {
	return Job{
		Name:     JobChallengeEvents,
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, failed := bus.ProcessEvents(ctx, maxEvents)
			if failed {
				return fmt.Errorf("challenge event processing failed after %d events", n)
			}
			if n > 0 {
				logger.InfoCtx(ctx, "Processed challenge events", zap.Int("count", n))
			}
			return nil
		},
	}
}

// BlacklistSyncJob re-reads the CID blacklist file into this process
func BlacklistSyncJob(blacklist registry.CIDBlacklist, interval time.Duration) Job {
	return Job{
		Name:     JobBlacklistSync,
		Interval: interval,
		Local:    true,
		Run: func(ctx context.Context) error {
			return blacklist.Reload()
		},
	}
}

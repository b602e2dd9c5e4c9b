// Package plays records listens consumed from the plays stream and feeds
// the play count challenge.
package plays

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/feral-file/ff-entity-indexer/internal/challenges"
	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/logger"
	"github.com/feral-file/ff-entity-indexer/internal/store"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

// ScopedDispatcher hands out challenge batches that are flushed once.
// Flush retries events left over from a failed batch.
type ScopedDispatcher interface {
	UseScopedDispatchQueue(ctx context.Context, fn func(batch *challenges.Batch) error) error
	Flush(ctx context.Context) error
}

// Recorder stores plays and dispatches track_played events to the track owner
type Recorder struct {
	store store.ChallengeStore
	bus   ScopedDispatcher
}

// NewRecorder creates a recorder
func NewRecorder(st store.ChallengeStore, bus ScopedDispatcher) *Recorder {
	return &Recorder{store: st, bus: bus}
}

// Handle records one PlayRecorded message
func (r *Recorder) Handle(ctx context.Context, data []byte) error {
	var play domain.PlayRecorded
	if err := json.Unmarshal(data, &play); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeserialize, err)
	}
	if play.TrackID <= 0 {
		return domain.Invalid("play %q has no track id", play.Signature)
	}

	// A message whose events could not be queued is redelivered; older
	// leftovers go first so the queue keeps arrival order
	if err := r.bus.Flush(ctx); err != nil {
		return err
	}

	owners, err := r.store.GetTrackOwners(ctx, []int64{play.TrackID})
	if err != nil {
		return err
	}

	row := schema.Play{
		UserID:     play.UserID,
		PlayItemID: play.TrackID,
		CreatedAt:  play.PlayedAt,
	}
	if play.Signature != "" {
		row.Signature = &play.Signature
	}
	if err := r.store.InsertPlays(ctx, []schema.Play{row}); err != nil {
		return err
	}

	owner, ok := owners[play.TrackID]
	if !ok {
		logger.DebugCtx(ctx, "Play recorded for unknown track", zap.Int64("track_id", play.TrackID))
		return nil
	}

	return r.bus.UseScopedDispatchQueue(ctx, func(batch *challenges.Batch) error {
		batch.Dispatch(domain.ChallengeEventTrackPlayed, play.Slot, play.PlayedAt, owner, map[string]any{
			"track_id": play.TrackID,
		})
		return nil
	})
}

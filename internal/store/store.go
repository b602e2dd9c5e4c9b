package store

import (
	"context"
	"time"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

// Store defines the interface for database operations
type Store interface {
	EntityStore
	ChallengeStore
	CursorStore
}

// EntityStore defines the versioned entity operations used by the entity manager
type EntityStore interface {
	// FetchCurrent returns the current row of every key that exists, using one query per entity type
	FetchCurrent(ctx context.Context, keys []domain.EntityKey) (map[domain.EntityKey]schema.Record, error)
	// FetchUsersByHandleOrWallet returns current users owning any of the lowercased handles or wallets
	FetchUsersByHandleOrWallet(ctx context.Context, handles []string, wallets []string) ([]*schema.User, error)
	// FetchTrackRoutes returns every route row, current or not, of the owners whose
	// title slug is one of titleSlugs or whose slug is a suffixed form of one
	FetchTrackRoutes(ctx context.Context, ownerIDs []int64, titleSlugs []string) ([]*schema.TrackRoute, error)
	// FetchPlaylistRoutes returns every route row, current or not, of the owners whose
	// title slug is one of titleSlugs or whose slug is a suffixed form of one
	FetchPlaylistRoutes(ctx context.Context, ownerIDs []int64, titleSlugs []string) ([]*schema.PlaylistRoute, error)
	// CommitBlock atomically invalidates the prior current rows, inserts the new rows and moves the cursor
	CommitBlock(ctx context.Context, input CommitBlockInput) error
	// CountReposts returns the number of current, non-deleted reposts of an item
	CountReposts(ctx context.Context, itemID int64, repostType schema.SaveType) (int64, error)
	// CountSaves returns the number of current, non-deleted saves of an item
	CountSaves(ctx context.Context, itemID int64, saveType schema.SaveType) (int64, error)
	// CountFollowers returns the number of current, non-deleted follows of a user
	CountFollowers(ctx context.Context, userID int64) (int64, error)
}

// ChallengeStore defines the operations used by challenge managers
type ChallengeStore interface {
	// UpsertChallenges inserts or replaces challenge definitions
	UpsertChallenges(ctx context.Context, challenges []schema.Challenge) error
	// GetChallenge returns a challenge definition, or nil if it does not exist
	GetChallenge(ctx context.Context, challengeID string) (*schema.Challenge, error)
	// GetUserChallenges returns the user challenges of the given specifiers
	GetUserChallenges(ctx context.Context, challengeID string, specifiers []string) ([]schema.UserChallenge, error)
	// CountCompletedUserChallenges returns the number of completed rows per user
	CountCompletedUserChallenges(ctx context.Context, challengeID string, userIDs []int64) (map[int64]int64, error)
	// CountUserChallengesSince returns the number of rows of a challenge created at or after since
	CountUserChallengesSince(ctx context.Context, challengeID string, since time.Time) (int64, error)
	// GetDeactivatedUserIDs returns the subset of userIDs whose current user row is deactivated
	GetDeactivatedUserIDs(ctx context.Context, userIDs []int64) (map[int64]bool, error)
	// CountUserPlays returns the number of plays of the current tracks owned by a user
	CountUserPlays(ctx context.Context, userID int64) (int64, error)
	// CountUserTracks returns the number of current, non-deleted tracks owned by a user
	CountUserTracks(ctx context.Context, userID int64) (int64, error)
	// SaveUserChallenges inserts or updates user challenges
	SaveUserChallenges(ctx context.Context, rows []schema.UserChallenge) error
	// GetTrackOwners returns the owner of each current, non-deleted track
	GetTrackOwners(ctx context.Context, trackIDs []int64) (map[int64]int64, error)
	// InsertPlays records plays. Plays whose signature is already stored are ignored.
	InsertPlays(ctx context.Context, plays []schema.Play) error
	// Transaction runs fn inside a database transaction
	Transaction(ctx context.Context, fn func(tx ChallengeStore) error) error
}

// CursorStore defines the interface for storing and retrieving block cursors
type CursorStore interface {
	// GetBlockCursor retrieves the last processed block number for a source
	GetBlockCursor(ctx context.Context, name string) (uint64, error)
	// SetBlockCursor stores the last processed block number for a source
	SetBlockCursor(ctx context.Context, name string, blockNumber uint64) error
}

// BlockCursor is the cursor persisted together with a block commit
type BlockCursor struct {
	Name        string
	BlockNumber uint64
}

// CommitBlockInput is the outcome of applying one block
type CommitBlockInput struct {
	// NewRecords are inserted in order. Only the last record of each key is current.
	NewRecords []schema.Record
	// Invalidate holds the prior current rows to flip to non-current
	Invalidate []schema.Record
	// Cursor is stored in the same transaction when set
	Cursor *BlockCursor
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

// UpsertChallenges inserts or replaces challenge definitions
func (s *gormStore) UpsertChallenges(ctx context.Context, challenges []schema.Challenge) error {
	if len(challenges) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"type", "amount", "step_count", "active", "starting_block", "weekly_pool", "updated_at",
		}),
	}).Create(&challenges).Error
	if err != nil {
		return fmt.Errorf("failed to upsert challenges: %w", err)
	}
	return nil
}

// GetChallenge returns a challenge definition, or nil if it does not exist
func (s *gormStore) GetChallenge(ctx context.Context, challengeID string) (*schema.Challenge, error) {
	var challenge schema.Challenge
	err := s.db.WithContext(ctx).Where("id = ?", challengeID).First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return &challenge, nil
}

// GetUserChallenges returns the user challenges of the given specifiers
func (s *gormStore) GetUserChallenges(ctx context.Context, challengeID string, specifiers []string) ([]schema.UserChallenge, error) {
	if len(specifiers) == 0 {
		return nil, nil
	}

	var rows []schema.UserChallenge
	batchSize := calculateSafeBatchSize(len(specifiers), 1)
	for start := 0; start < len(specifiers); start += batchSize {
		var batch []schema.UserChallenge
		err := s.db.WithContext(ctx).
			Where("challenge_id = ? AND specifier IN ?", challengeID, specifiers[start:min(start+batchSize, len(specifiers))]).
			Find(&batch).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get user challenges: %w", err)
		}
		rows = append(rows, batch...)
	}
	return rows, nil
}

// CountCompletedUserChallenges returns the number of completed rows per user
func (s *gormStore) CountCompletedUserChallenges(ctx context.Context, challengeID string, userIDs []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(userIDs))
	if len(userIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		UserID int64
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&schema.UserChallenge{}).
		Select("user_id, COUNT(*) AS count").
		Where("challenge_id = ? AND is_complete = ? AND user_id IN ?", challengeID, true, userIDs).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count completed user challenges: %w", err)
	}

	for _, r := range rows {
		counts[r.UserID] = r.Count
	}
	return counts, nil
}

// CountUserChallengesSince returns the number of rows of a challenge created at or after since
func (s *gormStore) CountUserChallengesSince(ctx context.Context, challengeID string, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&schema.UserChallenge{}).
		Where("challenge_id = ? AND created_at >= ?", challengeID, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count user challenges: %w", err)
	}
	return count, nil
}

// GetDeactivatedUserIDs returns the subset of userIDs whose current user row is deactivated
func (s *gormStore) GetDeactivatedUserIDs(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	deactivated := make(map[int64]bool)
	if len(userIDs) == 0 {
		return deactivated, nil
	}

	var ids []int64
	err := s.db.WithContext(ctx).Model(&schema.User{}).
		Where("user_id IN ? AND is_current = ? AND is_deactivated = ?", userIDs, true, true).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get deactivated users: %w", err)
	}

	for _, id := range ids {
		deactivated[id] = true
	}
	return deactivated, nil
}

// CountUserPlays returns the number of plays of the current tracks owned by a user
func (s *gormStore) CountUserPlays(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&schema.Play{}).
		Joins("JOIN tracks ON tracks.track_id = plays.play_item_id AND tracks.is_current = ? AND tracks.is_delete = ?", true, false).
		Where("tracks.owner_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count user plays: %w", err)
	}
	return count, nil
}

// CountUserTracks returns the number of current, non-deleted tracks owned by a user
func (s *gormStore) CountUserTracks(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&schema.Track{}).
		Where("owner_id = ? AND is_current = ? AND is_delete = ?", userID, true, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count user tracks: %w", err)
	}
	return count, nil
}

// SaveUserChallenges inserts or updates user challenges
func (s *gormStore) SaveUserChallenges(ctx context.Context, rows []schema.UserChallenge) error {
	if len(rows) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "challenge_id"}, {Name: "specifier"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_complete", "current_step_count", "amount", "completed_blocknumber", "completed_at",
		}),
	}).CreateInBatches(&rows, calculateSafeBatchSize(len(rows), 9)).Error
	if err != nil {
		return fmt.Errorf("failed to save user challenges: %w", err)
	}
	return nil
}

// GetTrackOwners returns the owner of each current, non-deleted track
func (s *gormStore) GetTrackOwners(ctx context.Context, trackIDs []int64) (map[int64]int64, error) {
	owners := make(map[int64]int64, len(trackIDs))
	if len(trackIDs) == 0 {
		return owners, nil
	}

	var tracks []schema.Track
	err := s.db.WithContext(ctx).
		Select("track_id", "owner_id").
		Where("track_id IN ? AND is_current = ? AND is_delete = ?", trackIDs, true, false).
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get track owners: %w", err)
	}
	for _, t := range tracks {
		owners[t.TrackID] = t.OwnerID
	}
	return owners, nil
}

// InsertPlays records plays. Plays whose signature is already stored are ignored.
func (s *gormStore) InsertPlays(ctx context.Context, plays []schema.Play) error {
	if len(plays) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&plays, calculateSafeBatchSize(len(plays), 4)).Error
	if err != nil {
		return fmt.Errorf("failed to insert plays: %w", err)
	}
	return nil
}

// Transaction runs fn inside a database transaction. The transaction is
// rolled back when fn returns an error.
func (s *gormStore) Transaction(ctx context.Context, fn func(tx ChallengeStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

func cursorKey(name string) string {
	return fmt.Sprintf("block_cursor:%s", name)
}

// GetBlockCursor retrieves the last processed block number for a source
func (s *gormStore) GetBlockCursor(ctx context.Context, name string) (uint64, error) {
	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", cursorKey(name)).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil // Return 0 if no cursor exists
		}
		return 0, fmt.Errorf("failed to get block cursor: %w", err)
	}

	blockNumber, err := strconv.ParseUint(kv.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse block cursor: %w", err)
	}

	return blockNumber, nil
}

// SetBlockCursor stores the last processed block number for a source
func (s *gormStore) SetBlockCursor(ctx context.Context, name string, blockNumber uint64) error {
	return setBlockCursor(s.db.WithContext(ctx), name, blockNumber)
}

func setBlockCursor(tx *gorm.DB, name string, blockNumber uint64) error {
	kv := schema.KeyValueStore{
		Key:   cursorKey(name),
		Value: strconv.FormatUint(blockNumber, 10),
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&kv).Error
	if err != nil {
		return fmt.Errorf("failed to set block cursor: %w", err)
	}

	return nil
}

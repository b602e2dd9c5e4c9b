package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
)

// Versioned holds the bookkeeping columns shared by every versioned entity.
// Every mutation of an entity appends a new row; at most one row per natural
// key has IsCurrent set.
type Versioned struct {
	// RowID is the internal primary key. Rows are inserted in replay order, so it
	// also orders the version chain of one entity.
	RowID int64 `gorm:"column:row_id;primaryKey;autoIncrement"`
	// IsCurrent marks the latest committed version of the entity
	IsCurrent bool `gorm:"column:is_current;not null;index"`
	// IsDelete marks a tombstone version
	IsDelete bool `gorm:"column:is_delete;not null"`
	// Blockhash of the block that produced this version
	Blockhash string `gorm:"column:blockhash;type:text"`
	// Blocknumber of the block that produced this version
	Blocknumber uint64 `gorm:"column:blocknumber;not null;index"`
	// Txhash of the transaction that produced this version
	Txhash string `gorm:"column:txhash;type:text"`
	// CreatedAt is the block time of the entity's first version
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	// UpdatedAt is the block time of this version
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// Record is implemented by every versioned model
type Record interface {
	// EntityType returns the entity type of the record
	EntityType() domain.EntityType
	// EntityKey returns the natural key of the record
	EntityKey() domain.EntityKey
	// Version returns the versioning columns of the record
	Version() *Versioned
	// Clone returns a deep copy of the record
	Clone() Record
}

// Version returns the versioning columns
func (v *Versioned) Version() *Versioned {
	return v
}

// NextVersion resets the row identity so the record can be inserted as a new version
func (v *Versioned) NextVersion(blockNumber uint64, blockHash, txHash string, at time.Time) {
	v.RowID = 0
	v.IsCurrent = true
	v.Blocknumber = blockNumber
	v.Blockhash = blockHash
	v.Txhash = txHash
	v.UpdatedAt = at
	if v.CreatedAt.IsZero() {
		v.CreatedAt = at
	}
}

func cloneJSON(j datatypes.JSON) datatypes.JSON {
	if j == nil {
		return nil
	}
	c := make(datatypes.JSON, len(j))
	copy(c, j)
	return c
}

func cloneInt64Ptr(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

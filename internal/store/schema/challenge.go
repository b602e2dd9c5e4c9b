package schema

import (
	"time"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
)

// Challenge is a challenge definition. Definitions are loaded from config and
// read by challenge managers.
type Challenge struct {
	// ID is the short challenge id, e.g. "u" or "pc"
	ID   string               `gorm:"column:id;primaryKey;type:text"`
	Type domain.ChallengeType `gorm:"column:type;type:text;not null"`
	// Amount is the reward per completion
	Amount int64 `gorm:"column:amount;not null"`
	// StepCount is the number of steps to complete a numeric challenge, or the
	// maximum number of completions of an aggregate challenge
	StepCount *int `gorm:"column:step_count"`
	Active    bool `gorm:"column:active;not null"`
	// StartingBlock filters out events from earlier blocks
	StartingBlock uint64    `gorm:"column:starting_block;not null"`
	WeeklyPool    *int64    `gorm:"column:weekly_pool"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Challenge) TableName() string {
	return "challenges"
}

// UserChallenge is one instance of a challenge for a user. Aggregate
// challenges hold one row per completion, told apart by Specifier.
type UserChallenge struct {
	ChallengeID string `gorm:"column:challenge_id;primaryKey;type:text"`
	Specifier   string `gorm:"column:specifier;primaryKey;type:text"`
	UserID      int64  `gorm:"column:user_id;not null;index"`
	IsComplete  bool   `gorm:"column:is_complete;not null"`
	// CurrentStepCount is nil for boolean and aggregate challenges
	CurrentStepCount     *int       `gorm:"column:current_step_count"`
	Amount               int64      `gorm:"column:amount;not null"`
	CompletedBlocknumber *uint64    `gorm:"column:completed_blocknumber"`
	CompletedAt          *time.Time `gorm:"column:completed_at"`
	// CreatedAt is the block time of the event that created the row
	CreatedAt time.Time `gorm:"column:created_at;not null;index"`
}

func (UserChallenge) TableName() string {
	return "user_challenges"
}

// Play is one listen of a track
type Play struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID     *int64 `gorm:"column:user_id"`
	PlayItemID int64  `gorm:"column:play_item_id;not null;index"`
	// Signature identifies the play at its source so redelivered plays are stored once
	Signature *string   `gorm:"column:signature;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (Play) TableName() string {
	return "plays"
}

// KeyValueStore stores arbitrary key-value pairs, such as the block cursor
type KeyValueStore struct {
	Key       string    `gorm:"primaryKey;type:text"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (KeyValueStore) TableName() string {
	return "key_value_store"
}

// VersionedModels lists the models that follow the versioned row layout
func VersionedModels() []any {
	return []any{
		&User{}, &Track{}, &Playlist{}, &TrackRoute{}, &PlaylistRoute{},
		&Follow{}, &Subscription{}, &Save{}, &Repost{}, &Grant{},
		&DashboardWalletUser{}, &Comment{}, &ContestEvent{},
	}
}

// AllModels lists every model of the schema
func AllModels() []any {
	return append(VersionedModels(), &Challenge{}, &UserChallenge{}, &Play{}, &KeyValueStore{})
}

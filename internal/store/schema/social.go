package schema

import (
	"github.com/feral-file/ff-entity-indexer/internal/domain"
)

// SaveType is the kind of item a save or repost targets
type SaveType string

const (
	SaveTypeTrack    SaveType = "track"
	SaveTypePlaylist SaveType = "playlist"
	SaveTypeAlbum    SaveType = "album"
)

// Follow represents the follows table. An unfollow is a tombstone version.
type Follow struct {
	Versioned
	FollowerUserID int64 `gorm:"column:follower_user_id;not null;uniqueIndex:idx_follows_current,priority:1,where:is_current = true"`
	FolloweeUserID int64 `gorm:"column:followee_user_id;not null;uniqueIndex:idx_follows_current,priority:2;index"`
}

func (Follow) TableName() string {
	return "follows"
}

func (f *Follow) EntityType() domain.EntityType {
	return domain.EntityTypeFollow
}

func (f *Follow) EntityKey() domain.EntityKey {
	return domain.NewEntityKey(domain.EntityTypeFollow, f.FollowerUserID, f.FolloweeUserID)
}

func (f *Follow) Clone() Record {
	c := *f
	return &c
}

// Subscription represents the subscriptions table
type Subscription struct {
	Versioned
	SubscriberID int64 `gorm:"column:subscriber_id;not null;uniqueIndex:idx_subscriptions_current,priority:1,where:is_current = true"`
	UserID       int64 `gorm:"column:user_id;not null;uniqueIndex:idx_subscriptions_current,priority:2"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) EntityType() domain.EntityType {
	return domain.EntityTypeSubscription
}

func (s *Subscription) EntityKey() domain.EntityKey {
	return domain.NewEntityKey(domain.EntityTypeSubscription, s.SubscriberID, s.UserID)
}

func (s *Subscription) Clone() Record {
	c := *s
	return &c
}

// Save represents the saves table
type Save struct {
	Versioned
	UserID     int64    `gorm:"column:user_id;not null;uniqueIndex:idx_saves_current,priority:1,where:is_current = true"`
	SaveItemID int64    `gorm:"column:save_item_id;not null;uniqueIndex:idx_saves_current,priority:2;index:idx_saves_item,priority:1"`
	SaveType   SaveType `gorm:"column:save_type;type:text;not null;uniqueIndex:idx_saves_current,priority:3;index:idx_saves_item,priority:2"`
}

func (Save) TableName() string {
	return "saves"
}

func (s *Save) EntityType() domain.EntityType {
	return domain.EntityTypeSave
}

func (s *Save) EntityKey() domain.EntityKey {
	return domain.NewEntityKey(domain.EntityTypeSave, s.UserID, s.SaveItemID, s.SaveType)
}

func (s *Save) Clone() Record {
	c := *s
	return &c
}

// Repost represents the reposts table
type Repost struct {
	Versioned
	UserID       int64    `gorm:"column:user_id;not null;uniqueIndex:idx_reposts_current,priority:1,where:is_current = true"`
	RepostItemID int64    `gorm:"column:repost_item_id;not null;uniqueIndex:idx_reposts_current,priority:2;index:idx_reposts_item,priority:1"`
	RepostType   SaveType `gorm:"column:repost_type;type:text;not null;uniqueIndex:idx_reposts_current,priority:3;index:idx_reposts_item,priority:2"`
}

func (Repost) TableName() string {
	return "reposts"
}

func (r *Repost) EntityType() domain.EntityType {
	return domain.EntityTypeRepost
}

func (r *Repost) EntityKey() domain.EntityKey {
	return domain.NewEntityKey(domain.EntityTypeRepost, r.UserID, r.RepostItemID, r.RepostType)
}

func (r *Repost) Clone() Record {
	c := *r
	return &c
}

package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
)

// Comment represents the comments table
type Comment struct {
	Versioned
	CommentID int64 `gorm:"column:comment_id;not null;uniqueIndex:idx_comments_current,where:is_current = true"`
	// UserID is the author
	UserID int64 `gorm:"column:user_id;not null"`
	// EntityID is the commented track
	EntityID int64 `gorm:"column:entity_id;not null;index"`
	// TargetType is the entity type of EntityID
	TargetType      string `gorm:"column:entity_type;type:text;not null"`
	Text            string `gorm:"column:text;type:text"`
	ParentCommentID *int64 `gorm:"column:parent_comment_id"`
	// TrackTimestampS is the playback position the comment refers to
	TrackTimestampS *int64 `gorm:"column:track_timestamp_s"`
	IsEdited        bool   `gorm:"column:is_edited;not null"`
}

func (Comment) TableName() string {
	return "comments"
}

func (c *Comment) EntityType() domain.EntityType {
	return domain.EntityTypeComment
}

func (c *Comment) EntityKey() domain.EntityKey {
	return domain.IDKey(domain.EntityTypeComment, c.CommentID)
}

func (c *Comment) Clone() Record {
	n := *c
	n.ParentCommentID = cloneInt64Ptr(c.ParentCommentID)
	n.TrackTimestampS = cloneInt64Ptr(c.TrackTimestampS)
	return &n
}

// ContestEvent represents the events table. Only remix contests exist today:
// UserID hosts a contest on their track EntityID.
type ContestEvent struct {
	Versioned
	EventID    int64      `gorm:"column:event_id;not null;uniqueIndex:idx_events_current,where:is_current = true"`
	EventType  string     `gorm:"column:event_type;type:text;not null"`
	UserID     int64      `gorm:"column:user_id;not null;index"`
	TargetType string     `gorm:"column:entity_type;type:text"`
	EntityID   int64      `gorm:"column:entity_id"`
	EndDate    *time.Time `gorm:"column:end_date"`
	// EventData holds the contest description and the winners list
	EventData datatypes.JSON `gorm:"column:event_data;type:jsonb"`
}

func (ContestEvent) TableName() string {
	return "events"
}

func (e *ContestEvent) EntityType() domain.EntityType {
	return domain.EntityTypeEvent
}

func (e *ContestEvent) EntityKey() domain.EntityKey {
	return domain.IDKey(domain.EntityTypeEvent, e.EventID)
}

func (e *ContestEvent) Clone() Record {
	c := *e
	c.EndDate = cloneTimePtr(e.EndDate)
	c.EventData = cloneJSON(e.EventData)
	return &c
}

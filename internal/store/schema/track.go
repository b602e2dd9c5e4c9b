package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
)

// Track represents the tracks table
type Track struct {
	Versioned
	// TrackID is the on-chain track id
	TrackID int64 `gorm:"column:track_id;not null;uniqueIndex:idx_tracks_current,where:is_current = true"`
	// OwnerID is the user id of the uploader
	OwnerID     int64  `gorm:"column:owner_id;not null;index"`
	Title       string `gorm:"column:title;type:text"`
	Description string `gorm:"column:description;type:text"`
	Genre       string `gorm:"column:genre;type:text"`
	Mood        string `gorm:"column:mood;type:text"`
	Tags        string `gorm:"column:tags;type:text"`
	// Duration in seconds
	Duration      int    `gorm:"column:duration"`
	TrackCID      string `gorm:"column:track_cid;type:text"`
	CoverArtSizes string `gorm:"column:cover_art_sizes;type:text"`
	IsUnlisted    bool   `gorm:"column:is_unlisted;not null"`
	// IsStreamGated marks premium content which may not be added to playlists
	IsStreamGated    bool           `gorm:"column:is_stream_gated;not null"`
	StreamConditions datatypes.JSON `gorm:"column:stream_conditions;type:jsonb"`
	// RemixOf holds the parent tracks when this track is a remix
	RemixOf datatypes.JSON `gorm:"column:remix_of;type:jsonb"`
	// PinnedCommentID is the comment pinned by the track owner
	PinnedCommentID   *int64     `gorm:"column:pinned_comment_id"`
	ReleaseDate       *time.Time `gorm:"column:release_date"`
	MetadataMultihash string     `gorm:"column:metadata_multihash;type:text"`
}

func (Track) TableName() string {
	return "tracks"
}

func (t *Track) EntityType() domain.EntityType {
	return domain.EntityTypeTrack
}

func (t *Track) EntityKey() domain.EntityKey {
	return domain.IDKey(domain.EntityTypeTrack, t.TrackID)
}

func (t *Track) Clone() Record {
	c := *t
	c.StreamConditions = cloneJSON(t.StreamConditions)
	c.RemixOf = cloneJSON(t.RemixOf)
	c.PinnedCommentID = cloneInt64Ptr(t.PinnedCommentID)
	c.ReleaseDate = cloneTimePtr(t.ReleaseDate)
	return &c
}

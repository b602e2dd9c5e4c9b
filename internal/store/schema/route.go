package schema

import (
	"github.com/feral-file/ff-entity-indexer/internal/domain"
)

// TrackRoute maps a permalink slug to a track. Old routes stay as non-current
// rows so the slug remains reserved for the owner.
type TrackRoute struct {
	Versioned
	// Slug is TitleSlug, suffixed with "-<CollisionID>" when CollisionID > 0
	Slug string `gorm:"column:slug;type:text;not null"`
	// TitleSlug is the sanitized title shared by colliding routes
	TitleSlug string `gorm:"column:title_slug;type:text;not null;index:idx_track_routes_owner_title,priority:2"`
	// CollisionID disambiguates routes of one owner with the same TitleSlug
	CollisionID int   `gorm:"column:collision_id;not null"`
	OwnerID     int64 `gorm:"column:owner_id;not null;index:idx_track_routes_owner_title,priority:1"`
	TrackID     int64 `gorm:"column:track_id;not null;uniqueIndex:idx_track_routes_current,where:is_current = true"`
}

func (TrackRoute) TableName() string {
	return "track_routes"
}

func (r *TrackRoute) EntityType() domain.EntityType {
	return domain.EntityTypeTrackRoute
}

func (r *TrackRoute) EntityKey() domain.EntityKey {
	return domain.IDKey(domain.EntityTypeTrackRoute, r.TrackID)
}

func (r *TrackRoute) Clone() Record {
	c := *r
	return &c
}

// PlaylistRoute maps a permalink slug to a playlist
type PlaylistRoute struct {
	Versioned
	Slug        string `gorm:"column:slug;type:text;not null"`
	TitleSlug   string `gorm:"column:title_slug;type:text;not null;index:idx_playlist_routes_owner_title,priority:2"`
	CollisionID int    `gorm:"column:collision_id;not null"`
	OwnerID     int64  `gorm:"column:owner_id;not null;index:idx_playlist_routes_owner_title,priority:1"`
	PlaylistID  int64  `gorm:"column:playlist_id;not null;uniqueIndex:idx_playlist_routes_current,where:is_current = true"`
}

func (PlaylistRoute) TableName() string {
	return "playlist_routes"
}

func (r *PlaylistRoute) EntityType() domain.EntityType {
	return domain.EntityTypePlaylistRoute
}

func (r *PlaylistRoute) EntityKey() domain.EntityKey {
	return domain.IDKey(domain.EntityTypePlaylistRoute, r.PlaylistID)
}

func (r *PlaylistRoute) Clone() Record {
	c := *r
	return &c
}

package schema

import (
	"gorm.io/datatypes"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
)

// Playlist represents the playlists table. Albums are playlists with IsAlbum set.
type Playlist struct {
	Versioned
	// PlaylistID is the on-chain playlist id
	PlaylistID      int64  `gorm:"column:playlist_id;not null;uniqueIndex:idx_playlists_current,where:is_current = true"`
	PlaylistOwnerID int64  `gorm:"column:playlist_owner_id;not null;index"`
	PlaylistName    string `gorm:"column:playlist_name;type:text"`
	Description     string `gorm:"column:description;type:text"`
	IsAlbum         bool   `gorm:"column:is_album;not null"`
	IsPrivate       bool   `gorm:"column:is_private;not null"`
	// PlaylistContents is {"track_ids": [{"track": id, "time": unix}]}
	PlaylistContents  datatypes.JSON `gorm:"column:playlist_contents;type:jsonb"`
	PlaylistImage     string         `gorm:"column:playlist_image;type:text"`
	MetadataMultihash string         `gorm:"column:metadata_multihash;type:text"`
}

func (Playlist) TableName() string {
	return "playlists"
}

func (p *Playlist) EntityType() domain.EntityType {
	return domain.EntityTypePlaylist
}

func (p *Playlist) EntityKey() domain.EntityKey {
	return domain.IDKey(domain.EntityTypePlaylist, p.PlaylistID)
}

func (p *Playlist) Clone() Record {
	c := *p
	c.PlaylistContents = cloneJSON(p.PlaylistContents)
	return &c
}

package schema

import (
	"gorm.io/datatypes"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
)

// User represents the users table
type User struct {
	Versioned
	// UserID is the on-chain user id
	UserID int64 `gorm:"column:user_id;not null;uniqueIndex:idx_users_current,where:is_current = true"`
	// Handle is the display handle as submitted
	Handle string `gorm:"column:handle;type:text"`
	// HandleLC is the lowercased handle used for uniqueness checks
	HandleLC string `gorm:"column:handle_lc;type:text;index"`
	// Wallet is the lowercased wallet address that signs on behalf of the user
	Wallet string `gorm:"column:wallet;type:text;index"`
	Name   string `gorm:"column:name;type:text"`
	Bio    string `gorm:"column:bio;type:text"`
	// Location is a free-form location string
	Location       string `gorm:"column:location;type:text"`
	ProfilePicture string `gorm:"column:profile_picture;type:text"`
	CoverPhoto     string `gorm:"column:cover_photo;type:text"`
	// IsVerified is set by the verifier address only
	IsVerified    bool `gorm:"column:is_verified;not null"`
	IsDeactivated bool `gorm:"column:is_deactivated;not null"`
	// ArtistPickTrackID is the track pinned on the user's profile
	ArtistPickTrackID *int64 `gorm:"column:artist_pick_track_id"`
	// PlaylistLibrary is the user's folder layout of playlists
	PlaylistLibrary   datatypes.JSON `gorm:"column:playlist_library;type:jsonb"`
	MetadataMultihash string         `gorm:"column:metadata_multihash;type:text"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) EntityType() domain.EntityType {
	return domain.EntityTypeUser
}

func (u *User) EntityKey() domain.EntityKey {
	return domain.IDKey(domain.EntityTypeUser, u.UserID)
}

func (u *User) Clone() Record {
	c := *u
	c.ArtistPickTrackID = cloneInt64Ptr(u.ArtistPickTrackID)
	c.PlaylistLibrary = cloneJSON(u.PlaylistLibrary)
	return &c
}

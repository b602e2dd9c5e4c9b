package entitymanager

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

type playlistContents struct {
	TrackIDs []struct {
		Track int64 `json:"track"`
		Time  int64 `json:"time"`
	} `json:"track_ids"`
}

type playlistMetadata struct {
	PlaylistName     *string           `json:"playlist_name"`
	Description      *string           `json:"description"`
	IsAlbum          *bool             `json:"is_album"`
	IsPrivate        *bool             `json:"is_private"`
	PlaylistContents *playlistContents `json:"playlist_contents"`
	PlaylistImage    *string           `json:"playlist_image_sizes_multihash"`
}

func prefetchPlaylist(p *Params, l *Lookups) {
	l.add(domain.IDKey(domain.EntityTypePlaylist, p.Event.EntityID))

	var m playlistMetadata
	peek(p, &m)
	if m.PlaylistName != nil {
		prefetchRoute(l, domain.EntityTypePlaylistRoute, p.Event.UserID, p.Event.EntityID, *m.PlaylistName)
	}
	if m.PlaylistContents != nil {
		for _, item := range m.PlaylistContents.TrackIDs {
			l.add(domain.IDKey(domain.EntityTypeTrack, item.Track))
		}
	}
}

func validatePlaylistMetadata(p *Params, m *playlistMetadata, isAlbum bool) error {
	if m.Description != nil {
		if err := checkLength("description", *m.Description, p.Config.Limits.Description); err != nil {
			return err
		}
	}
	if m.PlaylistContents == nil || isAlbum {
		return nil
	}
	for _, item := range m.PlaylistContents.TrackIDs {
		if t := p.World.Track(item.Track); t != nil && t.IsStreamGated {
			return domain.Invalid("playlist cannot contain stream gated track %d", item.Track)
		}
	}
	return nil
}

func applyPlaylistMetadata(pl *schema.Playlist, m *playlistMetadata) error {
	if m.PlaylistName != nil {
		pl.PlaylistName = *m.PlaylistName
	}
	if m.Description != nil {
		pl.Description = *m.Description
	}
	if m.IsAlbum != nil {
		pl.IsAlbum = *m.IsAlbum
	}
	if m.IsPrivate != nil {
		pl.IsPrivate = *m.IsPrivate
	}
	if m.PlaylistImage != nil {
		pl.PlaylistImage = *m.PlaylistImage
	}
	if m.PlaylistContents != nil {
		contents, err := json.Marshal(m.PlaylistContents)
		if err != nil {
			return err
		}
		pl.PlaylistContents = datatypes.JSON(contents)
	}
	return nil
}

// ownedPlaylist returns the live playlist of the event, checking that the acting user owns it
func ownedPlaylist(p *Params) (*schema.Playlist, error) {
	pl := p.World.Playlist(p.Event.EntityID)
	if !live(pl) {
		return nil, domain.InvalidCause(domain.ErrEntityNotFound, "playlist %d does not exist", p.Event.EntityID)
	}
	if pl.PlaylistOwnerID != p.Event.UserID {
		return nil, domain.InvalidCause(domain.ErrUnauthorized, "user %d does not own playlist %d", p.Event.UserID, pl.PlaylistID)
	}
	if _, err := p.authorize(p.Event.UserID); err != nil {
		return nil, err
	}
	return pl, nil
}

func validateCreatePlaylist(p *Params) error {
	ev := p.Event
	if err := checkCreateID(domain.EntityTypePlaylist, ev.EntityID, p.Config.Offsets.Playlist); err != nil {
		return err
	}
	if p.World.Playlist(ev.EntityID) != nil {
		return domain.Invalid("playlist %d already exists", ev.EntityID)
	}
	if _, err := p.authorize(ev.UserID); err != nil {
		return err
	}
	if err := p.checkBlacklist(); err != nil {
		return err
	}

	var m playlistMetadata
	if err := p.decode(&m); err != nil {
		return err
	}
	if m.PlaylistName == nil || *m.PlaylistName == "" {
		return domain.MissingMetadata("playlist_name")
	}
	return validatePlaylistMetadata(p, &m, m.IsAlbum != nil && *m.IsAlbum)
}

func createPlaylist(p *Params) (*Result, error) {
	var m playlistMetadata
	if err := p.decode(&m); err != nil {
		return nil, err
	}

	pl := &schema.Playlist{
		PlaylistID:        p.Event.EntityID,
		PlaylistOwnerID:   p.Event.UserID,
		MetadataMultihash: p.Event.MetadataCID,
	}
	if err := applyPlaylistMetadata(pl, &m); err != nil {
		return nil, domain.InvalidCause(err, "malformed playlist contents")
	}
	result := &Result{Records: []schema.Record{p.stamp(pl)}}

	if row, ok := nextRoute(p.World, domain.EntityTypePlaylistRoute, pl.PlaylistOwnerID, pl.PlaylistID, pl.PlaylistName); ok {
		result.Records = append(result.Records, p.routeRecord(domain.EntityTypePlaylistRoute, row))
	}
	if !pl.IsAlbum {
		result.ChallengeEvents = append(result.ChallengeEvents,
			p.challengeEvent(domain.ChallengeEventFirstPlaylist, pl.PlaylistOwnerID, map[string]any{"playlist_id": pl.PlaylistID}))
	}
	return result, nil
}

func validateUpdatePlaylist(p *Params) error {
	pl, err := ownedPlaylist(p)
	if err != nil {
		return err
	}
	if err := p.checkBlacklist(); err != nil {
		return err
	}

	var m playlistMetadata
	if err := p.decode(&m); err != nil {
		return err
	}
	if m.PlaylistName != nil && *m.PlaylistName == "" {
		return domain.MissingMetadata("playlist_name")
	}
	isAlbum := pl.IsAlbum
	if m.IsAlbum != nil {
		isAlbum = *m.IsAlbum
	}
	return validatePlaylistMetadata(p, &m, isAlbum)
}

func updatePlaylist(p *Params) (*Result, error) {
	var m playlistMetadata
	if err := p.decode(&m); err != nil {
		return nil, err
	}

	pl := p.World.Playlist(p.Event.EntityID).Clone().(*schema.Playlist)
	if err := applyPlaylistMetadata(pl, &m); err != nil {
		return nil, domain.InvalidCause(err, "malformed playlist contents")
	}
	if p.Event.MetadataCID != "" {
		pl.MetadataMultihash = p.Event.MetadataCID
	}
	result := &Result{Records: []schema.Record{p.stamp(pl)}}

	if row, ok := nextRoute(p.World, domain.EntityTypePlaylistRoute, pl.PlaylistOwnerID, pl.PlaylistID, pl.PlaylistName); ok {
		result.Records = append(result.Records, p.routeRecord(domain.EntityTypePlaylistRoute, row))
	}
	return result, nil
}

func validateDeletePlaylist(p *Params) error {
	// Deleting a deleted playlist is a no-op
	if pl := p.World.Playlist(p.Event.EntityID); pl != nil && pl.IsDelete {
		if pl.PlaylistOwnerID != p.Event.UserID {
			return domain.InvalidCause(domain.ErrUnauthorized, "user %d does not own playlist %d", p.Event.UserID, pl.PlaylistID)
		}
		_, err := p.authorize(p.Event.UserID)
		return err
	}
	_, err := ownedPlaylist(p)
	return err
}

func deletePlaylist(p *Params) (*Result, error) {
	cur := p.World.Playlist(p.Event.EntityID)
	if cur.IsDelete {
		return noop()
	}
	return &Result{Records: []schema.Record{p.tombstone(cur.Clone())}}, nil
}

package entitymanager

import (
	"encoding/json"
	"slices"
	"time"

	"gorm.io/datatypes"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

type trackMetadata struct {
	Title            *string         `json:"title"`
	Description      *string         `json:"description"`
	Genre            *string         `json:"genre"`
	Mood             *string         `json:"mood"`
	Tags             *string         `json:"tags"`
	Duration         *int            `json:"duration"`
	TrackCID         *string         `json:"track_cid"`
	CoverArtSizes    *string         `json:"cover_art_sizes"`
	IsUnlisted       *bool           `json:"is_unlisted"`
	IsStreamGated    *bool           `json:"is_stream_gated"`
	StreamConditions json.RawMessage `json:"stream_conditions"`
	RemixOf          json.RawMessage `json:"remix_of"`
	ReleaseDate      *time.Time      `json:"release_date"`
}

func prefetchTrack(p *Params, l *Lookups) {
	l.add(domain.IDKey(domain.EntityTypeTrack, p.Event.EntityID))

	var m trackMetadata
	peek(p, &m)
	if m.Title != nil {
		prefetchRoute(l, domain.EntityTypeTrackRoute, p.Event.UserID, p.Event.EntityID, *m.Title)
	}
}

func validateTrackMetadata(p *Params, m *trackMetadata) error {
	if m.Genre != nil && *m.Genre != "" && !slices.Contains(p.Config.Genres, *m.Genre) {
		return domain.Invalid("genre %q is not allowed", *m.Genre)
	}
	if m.Description != nil {
		if err := checkLength("description", *m.Description, p.Config.Limits.Description); err != nil {
			return err
		}
	}
	if m.Duration != nil && *m.Duration < 0 {
		return domain.Invalid("negative track duration")
	}
	return nil
}

func applyTrackMetadata(t *schema.Track, m *trackMetadata) {
	if m.Title != nil {
		t.Title = *m.Title
	}
	if m.Description != nil {
		t.Description = *m.Description
	}
	if m.Genre != nil {
		t.Genre = *m.Genre
	}
	if m.Mood != nil {
		t.Mood = *m.Mood
	}
	if m.Tags != nil {
		t.Tags = *m.Tags
	}
	if m.Duration != nil {
		t.Duration = *m.Duration
	}
	if m.TrackCID != nil {
		t.TrackCID = *m.TrackCID
	}
	if m.CoverArtSizes != nil {
		t.CoverArtSizes = *m.CoverArtSizes
	}
	if m.IsUnlisted != nil {
		t.IsUnlisted = *m.IsUnlisted
	}
	if m.IsStreamGated != nil {
		t.IsStreamGated = *m.IsStreamGated
	}
	if len(m.StreamConditions) > 0 {
		t.StreamConditions = datatypes.JSON(append([]byte(nil), m.StreamConditions...))
	}
	if len(m.RemixOf) > 0 {
		t.RemixOf = datatypes.JSON(append([]byte(nil), m.RemixOf...))
	}
	if m.ReleaseDate != nil {
		d := *m.ReleaseDate
		t.ReleaseDate = &d
	}
}

// ownedTrack returns the live track of the event, checking that the acting user owns it
func ownedTrack(p *Params) (*schema.Track, error) {
	t := p.World.Track(p.Event.EntityID)
	if !live(t) {
		return nil, domain.InvalidCause(domain.ErrEntityNotFound, "track %d does not exist", p.Event.EntityID)
	}
	if t.OwnerID != p.Event.UserID {
		return nil, domain.InvalidCause(domain.ErrUnauthorized, "user %d does not own track %d", p.Event.UserID, t.TrackID)
	}
	if _, err := p.authorize(p.Event.UserID); err != nil {
		return nil, err
	}
	return t, nil
}

func validateCreateTrack(p *Params) error {
	ev := p.Event
	if err := checkCreateID(domain.EntityTypeTrack, ev.EntityID, p.Config.Offsets.Track); err != nil {
		return err
	}
	if p.World.Track(ev.EntityID) != nil {
		return domain.Invalid("track %d already exists", ev.EntityID)
	}
	if _, err := p.authorize(ev.UserID); err != nil {
		return err
	}
	if err := p.checkBlacklist(); err != nil {
		return err
	}

	var m trackMetadata
	if err := p.decode(&m); err != nil {
		return err
	}
	if m.Title == nil || *m.Title == "" {
		return domain.MissingMetadata("title")
	}
	return validateTrackMetadata(p, &m)
}

func createTrack(p *Params) (*Result, error) {
	var m trackMetadata
	if err := p.decode(&m); err != nil {
		return nil, err
	}

	t := &schema.Track{
		TrackID:           p.Event.EntityID,
		OwnerID:           p.Event.UserID,
		MetadataMultihash: p.Event.MetadataCID,
	}
	applyTrackMetadata(t, &m)
	result := &Result{Records: []schema.Record{p.stamp(t)}}

	if row, ok := nextRoute(p.World, domain.EntityTypeTrackRoute, t.OwnerID, t.TrackID, t.Title); ok {
		result.Records = append(result.Records, p.routeRecord(domain.EntityTypeTrackRoute, row))
	}
	result.ChallengeEvents = append(result.ChallengeEvents,
		p.challengeEvent(domain.ChallengeEventTrackUpload, t.OwnerID, map[string]any{"track_id": t.TrackID}))
	return result, nil
}

func validateUpdateTrack(p *Params) error {
	if _, err := ownedTrack(p); err != nil {
		return err
	}
	if err := p.checkBlacklist(); err != nil {
		return err
	}

	var m trackMetadata
	if err := p.decode(&m); err != nil {
		return err
	}
	if m.Title != nil && *m.Title == "" {
		return domain.MissingMetadata("title")
	}
	return validateTrackMetadata(p, &m)
}

func updateTrack(p *Params) (*Result, error) {
	var m trackMetadata
	if err := p.decode(&m); err != nil {
		return nil, err
	}

	t := p.World.Track(p.Event.EntityID).Clone().(*schema.Track)
	applyTrackMetadata(t, &m)
	if p.Event.MetadataCID != "" {
		t.MetadataMultihash = p.Event.MetadataCID
	}
	result := &Result{Records: []schema.Record{p.stamp(t)}}

	if row, ok := nextRoute(p.World, domain.EntityTypeTrackRoute, t.OwnerID, t.TrackID, t.Title); ok {
		result.Records = append(result.Records, p.routeRecord(domain.EntityTypeTrackRoute, row))
	}
	return result, nil
}

func validateDeleteTrack(p *Params) error {
	// Deleting a deleted track is a no-op
	if t := p.World.Track(p.Event.EntityID); t != nil && t.IsDelete {
		if t.OwnerID != p.Event.UserID {
			return domain.InvalidCause(domain.ErrUnauthorized, "user %d does not own track %d", p.Event.UserID, t.TrackID)
		}
		_, err := p.authorize(p.Event.UserID)
		return err
	}
	_, err := ownedTrack(p)
	return err
}

func deleteTrack(p *Params) (*Result, error) {
	cur := p.World.Track(p.Event.EntityID)
	if cur.IsDelete {
		return noop()
	}
	return &Result{Records: []schema.Record{p.tombstone(cur.Clone())}}, nil
}

package entitymanager

import (
	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

const commentEntityTypeTrack = "Track"

type commentMetadata struct {
	EntityID        int64   `json:"entity_id"`
	EntityType      string  `json:"entity_type"`
	Body            *string `json:"body"`
	ParentCommentID *int64  `json:"parent_comment_id"`
	TrackTimestampS *int64  `json:"track_timestamp_s"`
}

func prefetchComment(p *Params, l *Lookups) {
	l.add(domain.IDKey(domain.EntityTypeComment, p.Event.EntityID))

	var m commentMetadata
	peek(p, &m)
	if m.EntityID != 0 {
		l.add(domain.IDKey(domain.EntityTypeTrack, m.EntityID))
	}
	if m.ParentCommentID != nil {
		l.add(domain.IDKey(domain.EntityTypeComment, *m.ParentCommentID))
	}
}

func validateBody(p *Params, m *commentMetadata) error {
	if m.Body == nil || *m.Body == "" {
		return domain.MissingMetadata("body")
	}
	return checkLength("comment", *m.Body, p.Config.Limits.Comment)
}

func validateCreateComment(p *Params) error {
	ev := p.Event
	if err := checkCreateID(domain.EntityTypeComment, ev.EntityID, p.Config.Offsets.Comment); err != nil {
		return err
	}
	if p.World.Comment(ev.EntityID) != nil {
		return domain.Invalid("comment %d already exists", ev.EntityID)
	}
	if _, err := p.authorize(ev.UserID); err != nil {
		return err
	}

	var m commentMetadata
	if err := p.decode(&m); err != nil {
		return err
	}
	if err := validateBody(p, &m); err != nil {
		return err
	}
	if m.EntityType != "" && m.EntityType != commentEntityTypeTrack {
		return domain.Invalid("comments on %s are not supported", m.EntityType)
	}
	if m.EntityID == 0 {
		return domain.MissingMetadata("entity_id")
	}
	if !live(p.World.Track(m.EntityID)) {
		return domain.InvalidCause(domain.ErrEntityNotFound, "track %d does not exist", m.EntityID)
	}
	if m.ParentCommentID != nil {
		parent := p.World.Comment(*m.ParentCommentID)
		if !live(parent) || parent.EntityID != m.EntityID {
			return domain.Invalid("parent comment %d does not exist on track %d", *m.ParentCommentID, m.EntityID)
		}
	}
	return nil
}

func createComment(p *Params) (*Result, error) {
	var m commentMetadata
	if err := p.decode(&m); err != nil {
		return nil, err
	}

	c := &schema.Comment{
		CommentID:       p.Event.EntityID,
		UserID:          p.Event.UserID,
		EntityID:        m.EntityID,
		TargetType:      commentEntityTypeTrack,
		Text:            *m.Body,
		ParentCommentID: m.ParentCommentID,
		TrackTimestampS: m.TrackTimestampS,
	}
	return &Result{Records: []schema.Record{p.stamp(c)}}, nil
}

// authoredComment returns the live comment of the event, checking the acting user wrote it
func authoredComment(p *Params) (*schema.Comment, error) {
	c := p.World.Comment(p.Event.EntityID)
	if !live(c) {
		return nil, domain.InvalidCause(domain.ErrEntityNotFound, "comment %d does not exist", p.Event.EntityID)
	}
	if c.UserID != p.Event.UserID {
		return nil, domain.InvalidCause(domain.ErrUnauthorized, "user %d did not write comment %d", p.Event.UserID, c.CommentID)
	}
	if _, err := p.authorize(p.Event.UserID); err != nil {
		return nil, err
	}
	return c, nil
}

func validateUpdateComment(p *Params) error {
	if _, err := authoredComment(p); err != nil {
		return err
	}
	var m commentMetadata
	if err := p.decode(&m); err != nil {
		return err
	}
	return validateBody(p, &m)
}

func updateComment(p *Params) (*Result, error) {
	var m commentMetadata
	if err := p.decode(&m); err != nil {
		return nil, err
	}

	cur := p.World.Comment(p.Event.EntityID)
	if cur.Text == *m.Body {
		return noop()
	}
	c := cur.Clone().(*schema.Comment)
	c.Text = *m.Body
	c.IsEdited = true
	return &Result{Records: []schema.Record{p.stamp(c)}}, nil
}

// validateDeleteComment allows the author or the owner of the commented track
func validateDeleteComment(p *Params) error {
	c := p.World.Comment(p.Event.EntityID)
	if c == nil {
		return domain.InvalidCause(domain.ErrEntityNotFound, "comment %d does not exist", p.Event.EntityID)
	}
	if c.UserID != p.Event.UserID {
		t := p.World.Track(c.EntityID)
		if t == nil || t.OwnerID != p.Event.UserID {
			return domain.InvalidCause(domain.ErrUnauthorized, "user %d may not delete comment %d", p.Event.UserID, c.CommentID)
		}
	}
	_, err := p.authorize(p.Event.UserID)
	return err
}

func deleteComment(p *Params) (*Result, error) {
	cur := p.World.Comment(p.Event.EntityID)
	if cur.IsDelete {
		return noop()
	}
	return &Result{Records: []schema.Record{p.tombstone(cur.Clone())}}, nil
}

// pinTarget returns the comment and the track it is pinned on, checking the acting user owns the track
func pinTarget(p *Params) (*schema.Comment, *schema.Track, error) {
	c := p.World.Comment(p.Event.EntityID)
	if !live(c) {
		return nil, nil, domain.InvalidCause(domain.ErrEntityNotFound, "comment %d does not exist", p.Event.EntityID)
	}
	t := p.World.Track(c.EntityID)
	if !live(t) {
		return nil, nil, domain.InvalidCause(domain.ErrEntityNotFound, "track %d does not exist", c.EntityID)
	}
	if t.OwnerID != p.Event.UserID {
		return nil, nil, domain.InvalidCause(domain.ErrUnauthorized, "user %d does not own track %d", p.Event.UserID, t.TrackID)
	}
	return c, t, nil
}

func validatePinComment(p *Params) error {
	var m commentMetadata
	if err := p.decode(&m); err != nil {
		return err
	}
	if m.EntityID == 0 {
		return domain.MissingMetadata("entity_id")
	}
	c, _, err := pinTarget(p)
	if err != nil {
		return err
	}
	if c.EntityID != m.EntityID {
		return domain.Invalid("comment %d is not on track %d", c.CommentID, m.EntityID)
	}
	_, err = p.authorize(p.Event.UserID)
	return err
}

func pinComment(p *Params) (*Result, error) {
	c, cur, err := pinTarget(p)
	if err != nil {
		return nil, err
	}
	if cur.PinnedCommentID != nil && *cur.PinnedCommentID == c.CommentID {
		return noop()
	}
	t := cur.Clone().(*schema.Track)
	id := c.CommentID
	t.PinnedCommentID = &id
	return &Result{Records: []schema.Record{p.stamp(t)}}, nil
}

func unpinComment(p *Params) (*Result, error) {
	c, cur, err := pinTarget(p)
	if err != nil {
		return nil, err
	}
	if cur.PinnedCommentID == nil || *cur.PinnedCommentID != c.CommentID {
		return noop()
	}
	t := cur.Clone().(*schema.Track)
	t.PinnedCommentID = nil
	return &Result{Records: []schema.Record{p.stamp(t)}}, nil
}

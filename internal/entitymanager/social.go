package entitymanager

import (
	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

func prefetchFollow(p *Params, l *Lookups) {
	l.addUsers(p.Event.EntityID)
	l.add(domain.NewEntityKey(domain.EntityTypeFollow, p.Event.UserID, p.Event.EntityID))
}

func prefetchSubscription(p *Params, l *Lookups) {
	l.addUsers(p.Event.EntityID)
	l.add(domain.NewEntityKey(domain.EntityTypeSubscription, p.Event.UserID, p.Event.EntityID))
}

// validateUserTarget checks user to user actions: follow and subscribe
func validateUserTarget(p *Params) error {
	ev := p.Event
	if ev.UserID == ev.EntityID {
		return domain.Invalid("user %d cannot %s themselves", ev.UserID, ev.Action)
	}
	if _, err := p.authorize(ev.UserID); err != nil {
		return err
	}
	_, err := p.liveUser(ev.EntityID)
	return err
}

func validateFollow(p *Params) error {
	return validateUserTarget(p)
}

func validateSubscription(p *Params) error {
	return validateUserTarget(p)
}

func follow(p *Params) (*Result, error) {
	cur := p.World.Follow(p.Event.UserID, p.Event.EntityID)
	if live(cur) {
		return noop()
	}
	f := &schema.Follow{FollowerUserID: p.Event.UserID, FolloweeUserID: p.Event.EntityID}
	if cur != nil {
		f = cur.Clone().(*schema.Follow)
	}
	return &Result{Records: []schema.Record{p.stamp(f)}}, nil
}

func unfollow(p *Params) (*Result, error) {
	cur := p.World.Follow(p.Event.UserID, p.Event.EntityID)
	if !live(cur) {
		return noop()
	}
	return &Result{Records: []schema.Record{p.tombstone(cur.Clone())}}, nil
}

func subscribe(p *Params) (*Result, error) {
	cur := p.World.Subscription(p.Event.UserID, p.Event.EntityID)
	if live(cur) {
		return noop()
	}
	s := &schema.Subscription{SubscriberID: p.Event.UserID, UserID: p.Event.EntityID}
	if cur != nil {
		s = cur.Clone().(*schema.Subscription)
	}
	return &Result{Records: []schema.Record{p.stamp(s)}}, nil
}

func unsubscribe(p *Params) (*Result, error) {
	cur := p.World.Subscription(p.Event.UserID, p.Event.EntityID)
	if !live(cur) {
		return noop()
	}
	return &Result{Records: []schema.Record{p.tombstone(cur.Clone())}}, nil
}

// socialKind returns the entity type of the social row and whether the action turns it on
func socialKind(a domain.Action) (domain.EntityType, bool) {
	switch a {
	case domain.ActionSave:
		return domain.EntityTypeSave, true
	case domain.ActionUnsave:
		return domain.EntityTypeSave, false
	case domain.ActionRepost:
		return domain.EntityTypeRepost, true
	default:
		return domain.EntityTypeRepost, false
	}
}

func prefetchSocial(p *Params, l *Lookups) {
	ev := p.Event
	kind, _ := socialKind(ev.Action)
	l.add(domain.IDKey(ev.EntityType, ev.EntityID))
	if ev.EntityType == domain.EntityTypeTrack {
		l.add(domain.NewEntityKey(kind, ev.UserID, ev.EntityID, schema.SaveTypeTrack))
		return
	}
	// Albums and playlists share ids; the type is only known once the playlist is loaded
	l.add(
		domain.NewEntityKey(kind, ev.UserID, ev.EntityID, schema.SaveTypePlaylist),
		domain.NewEntityKey(kind, ev.UserID, ev.EntityID, schema.SaveTypeAlbum),
	)
}

// socialItemType returns the save type of the live item targeted by the event
func socialItemType(p *Params) (schema.SaveType, error) {
	ev := p.Event
	if ev.EntityType == domain.EntityTypeTrack {
		if !live(p.World.Track(ev.EntityID)) {
			return "", domain.InvalidCause(domain.ErrEntityNotFound, "track %d does not exist", ev.EntityID)
		}
		return schema.SaveTypeTrack, nil
	}

	pl := p.World.Playlist(ev.EntityID)
	if !live(pl) {
		return "", domain.InvalidCause(domain.ErrEntityNotFound, "playlist %d does not exist", ev.EntityID)
	}
	if pl.IsAlbum {
		return schema.SaveTypeAlbum, nil
	}
	return schema.SaveTypePlaylist, nil
}

func validateSocial(p *Params) error {
	if _, err := p.authorize(p.Event.UserID); err != nil {
		return err
	}
	_, err := socialItemType(p)
	return err
}

// toggleSocial saves, unsaves, reposts or unreposts a track or playlist
func toggleSocial(p *Params) (*Result, error) {
	ev := p.Event
	itemType, err := socialItemType(p)
	if err != nil {
		return nil, err
	}
	kind, on := socialKind(ev.Action)

	var cur schema.Record
	if kind == domain.EntityTypeSave {
		if s := p.World.Save(ev.UserID, ev.EntityID, itemType); s != nil {
			cur = s
		}
	} else if r := p.World.Repost(ev.UserID, ev.EntityID, itemType); r != nil {
		cur = r
	}

	if (cur != nil && !cur.Version().IsDelete) == on {
		return noop()
	}
	if !on {
		return &Result{Records: []schema.Record{p.tombstone(cur.Clone())}}, nil
	}

	var rec schema.Record
	switch {
	case cur != nil:
		rec = cur.Clone()
	case kind == domain.EntityTypeSave:
		rec = &schema.Save{UserID: ev.UserID, SaveItemID: ev.EntityID, SaveType: itemType}
	default:
		rec = &schema.Repost{UserID: ev.UserID, RepostItemID: ev.EntityID, RepostType: itemType}
	}
	return &Result{Records: []schema.Record{p.stamp(rec)}}, nil
}

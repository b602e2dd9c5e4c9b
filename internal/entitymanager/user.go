package entitymanager

import (
	"encoding/json"
	"regexp"
	"strings"

	"gorm.io/datatypes"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

type userMetadata struct {
	Handle            *string         `json:"handle"`
	Name              *string         `json:"name"`
	Bio               *string         `json:"bio"`
	Location          *string         `json:"location"`
	ProfilePicture    *string         `json:"profile_picture_sizes"`
	CoverPhoto        *string         `json:"cover_photo_sizes"`
	ArtistPickTrackID *int64          `json:"artist_pick_track_id"`
	PlaylistLibrary   json.RawMessage `json:"playlist_library"`
	IsDeactivated     *bool           `json:"is_deactivated"`
	Events            *struct {
		Referrer *int64 `json:"referrer"`
	} `json:"events"`
}

func (m *userMetadata) referrer() int64 {
	if m.Events == nil || m.Events.Referrer == nil {
		return 0
	}
	return *m.Events.Referrer
}

// peek decodes metadata during prefetch, ignoring errors that Validate reports later
func peek(p *Params, v any) {
	if len(p.Event.Metadata) > 0 {
		_ = json.Unmarshal(p.Event.Metadata, v)
	}
}

func prefetchUser(p *Params, l *Lookups) {
	l.addUsers(p.Event.EntityID)

	var m userMetadata
	peek(p, &m)
	if m.Handle != nil {
		l.addHandle(*m.Handle)
	}
	if p.Event.Action == domain.ActionCreate {
		l.addWallet(p.signer())
	}
	if ref := m.referrer(); ref != 0 {
		l.addUsers(ref)
	}
	if m.ArtistPickTrackID != nil {
		l.add(domain.IDKey(domain.EntityTypeTrack, *m.ArtistPickTrackID))
	}
}

func validateUserMetadata(p *Params, m *userMetadata, userID int64) error {
	if m.Handle != nil {
		handle := *m.Handle
		if handle == "" || !handlePattern.MatchString(handle) {
			return domain.Invalid("handle %q contains illegal characters", handle)
		}
		if err := checkLength("handle", handle, domain.CHARACTER_LIMIT_HANDLE); err != nil {
			return err
		}
		if other := p.World.UserByHandle(strings.ToLower(handle)); other != nil && other.UserID != userID {
			return domain.Invalid("handle %q is taken by user %d", handle, other.UserID)
		}
	}
	if m.Bio != nil {
		if err := checkLength("bio", *m.Bio, p.Config.Limits.Bio); err != nil {
			return err
		}
	}
	if m.ArtistPickTrackID != nil {
		t := p.World.Track(*m.ArtistPickTrackID)
		if !live(t) || t.OwnerID != userID {
			return domain.Invalid("artist pick track %d is not a track of user %d", *m.ArtistPickTrackID, userID)
		}
	}
	return nil
}

func applyUserMetadata(u *schema.User, m *userMetadata) {
	if m.Handle != nil {
		u.Handle = *m.Handle
		u.HandleLC = strings.ToLower(*m.Handle)
	}
	if m.Name != nil {
		u.Name = *m.Name
	}
	if m.Bio != nil {
		u.Bio = *m.Bio
	}
	if m.Location != nil {
		u.Location = *m.Location
	}
	if m.ProfilePicture != nil {
		u.ProfilePicture = *m.ProfilePicture
	}
	if m.CoverPhoto != nil {
		u.CoverPhoto = *m.CoverPhoto
	}
	if m.ArtistPickTrackID != nil {
		id := *m.ArtistPickTrackID
		u.ArtistPickTrackID = &id
	}
	if len(m.PlaylistLibrary) > 0 {
		u.PlaylistLibrary = datatypes.JSON(append([]byte(nil), m.PlaylistLibrary...))
	}
	if m.IsDeactivated != nil {
		u.IsDeactivated = *m.IsDeactivated
	}
}

func validateCreateUser(p *Params) error {
	ev := p.Event
	if err := checkCreateID(domain.EntityTypeUser, ev.EntityID, p.Config.Offsets.User); err != nil {
		return err
	}
	if ev.EntityID != ev.UserID {
		return domain.Invalid("user id %d does not match entity id %d", ev.UserID, ev.EntityID)
	}
	if p.World.User(ev.EntityID) != nil {
		return domain.Invalid("user %d already exists", ev.EntityID)
	}
	if other := p.World.UserByWallet(p.signer()); other != nil {
		return domain.Invalid("wallet %s already belongs to user %d", p.signer(), other.UserID)
	}
	if err := p.checkBlacklist(); err != nil {
		return err
	}

	var m userMetadata
	if err := p.decodeOptional(&m); err != nil {
		return err
	}
	if m.IsDeactivated != nil && *m.IsDeactivated {
		return domain.Invalid("user %d cannot be created deactivated", ev.EntityID)
	}
	return validateUserMetadata(p, &m, ev.EntityID)
}

func createUser(p *Params) (*Result, error) {
	var m userMetadata
	if err := p.decodeOptional(&m); err != nil {
		return nil, err
	}

	u := &schema.User{
		UserID:            p.Event.EntityID,
		Wallet:            p.signer(),
		MetadataMultihash: p.Event.MetadataCID,
	}
	applyUserMetadata(u, &m)
	result := &Result{Records: []schema.Record{p.stamp(u)}}

	if ref := m.referrer(); ref != 0 && ref != u.UserID {
		if referrer := p.World.User(ref); live(referrer) {
			result.ChallengeEvents = append(result.ChallengeEvents,
				p.challengeEvent(domain.ChallengeEventReferralSignup, ref, map[string]any{"referred_user_id": u.UserID}),
				p.challengeEvent(domain.ChallengeEventReferredSignup, u.UserID, map[string]any{"referrer_user_id": ref}),
			)
		}
	}
	return result, nil
}

func validateUpdateUser(p *Params) error {
	ev := p.Event
	if ev.EntityID != ev.UserID {
		return domain.Invalid("user %d cannot update user %d", ev.UserID, ev.EntityID)
	}
	if _, err := p.authorize(ev.UserID); err != nil {
		return err
	}
	if err := p.checkBlacklist(); err != nil {
		return err
	}

	var m userMetadata
	if err := p.decode(&m); err != nil {
		return err
	}
	return validateUserMetadata(p, &m, ev.EntityID)
}

func updateUser(p *Params) (*Result, error) {
	var m userMetadata
	if err := p.decode(&m); err != nil {
		return nil, err
	}

	u := p.World.User(p.Event.EntityID).Clone().(*schema.User)
	applyUserMetadata(u, &m)
	if p.Event.MetadataCID != "" {
		u.MetadataMultihash = p.Event.MetadataCID
	}
	return &Result{Records: []schema.Record{p.stamp(u)}}, nil
}

type verifyMetadata struct {
	IsVerified *bool `json:"is_verified"`
}

func (m verifyMetadata) target() bool {
	return m.IsVerified == nil || *m.IsVerified
}

func validateVerifyUser(p *Params) error {
	verifier := p.Config.VerifierAddress
	if verifier == "" || !strings.EqualFold(verifier, p.Event.SignerAddress) {
		return domain.InvalidCause(domain.ErrUnauthorized, "signer %s is not the verifier", p.Event.SignerAddress)
	}
	if _, err := p.liveUser(p.Event.EntityID); err != nil {
		return err
	}
	var m verifyMetadata
	return p.decodeOptional(&m)
}

func verifyUser(p *Params) (*Result, error) {
	var m verifyMetadata
	if err := p.decodeOptional(&m); err != nil {
		return nil, err
	}

	cur := p.World.User(p.Event.EntityID)
	if cur.IsVerified == m.target() {
		return noop()
	}
	u := cur.Clone().(*schema.User)
	u.IsVerified = m.target()
	return &Result{Records: []schema.Record{p.stamp(u)}}, nil
}

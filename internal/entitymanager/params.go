package entitymanager

import (
	"encoding/json"
	"strings"

	"github.com/feral-file/ff-entity-indexer/internal/config"
	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/registry"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

// Params bundles everything a resolver may read for one event
type Params struct {
	Event     *domain.ManageEntityEvent
	World     *World
	Config    *config.EntityManagerConfig
	Blacklist registry.CIDBlacklist
}

// Result is the outcome of applying one event. An empty result is a no-op.
type Result struct {
	Records         []schema.Record
	ChallengeEvents []domain.ChallengeEvent
}

// noop is returned when the entity is already in the requested state
func noop() (*Result, error) {
	return &Result{}, nil
}

// Lookups collects what must be fetched before a block is replayed
type Lookups struct {
	Keys []domain.EntityKey
	// Handles are lowercased user handles
	Handles []string
	// Wallets are lowercased user wallets
	Wallets []string
	Routes  []RouteLookup
}

// RouteLookup asks for every route of an owner sharing a title slug
type RouteLookup struct {
	RouteType domain.EntityType
	OwnerID   int64
	TitleSlug string
}

func (l *Lookups) add(keys ...domain.EntityKey) {
	l.Keys = append(l.Keys, keys...)
}

func (l *Lookups) addUsers(userIDs ...int64) {
	for _, id := range userIDs {
		l.Keys = append(l.Keys, domain.IDKey(domain.EntityTypeUser, id))
	}
}

func (l *Lookups) addHandle(handle string) {
	if handle != "" {
		l.Handles = append(l.Handles, strings.ToLower(handle))
	}
}

func (l *Lookups) addWallet(wallet string) {
	if wallet != "" {
		l.Wallets = append(l.Wallets, strings.ToLower(wallet))
	}
}

// signer returns the lowercased signer address
func (p *Params) signer() string {
	return strings.ToLower(p.Event.SignerAddress)
}

// decode unmarshals the event metadata into v
func (p *Params) decode(v any) error {
	if len(p.Event.Metadata) == 0 {
		return domain.MissingMetadata("metadata")
	}
	if err := json.Unmarshal(p.Event.Metadata, v); err != nil {
		return domain.InvalidCause(err, "malformed metadata")
	}
	return nil
}

// decodeOptional unmarshals the event metadata into v when present
func (p *Params) decodeOptional(v any) error {
	if len(p.Event.Metadata) == 0 {
		return nil
	}
	return p.decode(v)
}

// checkBlacklist rejects events whose metadata CID is blacklisted
func (p *Params) checkBlacklist() error {
	if p.Event.MetadataCID != "" && p.Blacklist != nil && p.Blacklist.IsBlacklisted(p.Event.MetadataCID) {
		return domain.Invalid("metadata CID %s is blacklisted", p.Event.MetadataCID)
	}
	return nil
}

// stamp turns rec into the next version produced by this event
func (p *Params) stamp(rec schema.Record) schema.Record {
	ev := p.Event
	rec.Version().NextVersion(ev.BlockNumber, ev.BlockHash, ev.TxHash, ev.BlockTimestamp)
	rec.Version().IsDelete = false
	return rec
}

// tombstone turns rec into a deleted version produced by this event
func (p *Params) tombstone(rec schema.Record) schema.Record {
	p.stamp(rec)
	rec.Version().IsDelete = true
	return rec
}

func (p *Params) challengeEvent(eventType domain.ChallengeEventType, userID int64, extra map[string]any) domain.ChallengeEvent {
	return domain.ChallengeEvent{
		EventType:     eventType,
		UserID:        userID,
		BlockNumber:   p.Event.BlockNumber,
		BlockDatetime: p.Event.BlockTimestamp,
		Extra:         extra,
	}
}

// liveUser returns the user when it exists and is not deleted
func (p *Params) liveUser(userID int64) (*schema.User, error) {
	u := p.World.User(userID)
	if u == nil || u.IsDelete {
		return nil, domain.InvalidCause(domain.ErrEntityNotFound, "user %d does not exist", userID)
	}
	return u, nil
}

// authorize checks that the signer may act for userID: either it is the
// user's wallet or it holds an approved, non-revoked grant from the user
func (p *Params) authorize(userID int64) (*schema.User, error) {
	u, err := p.liveUser(userID)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(u.Wallet, p.Event.SignerAddress) {
		return u, nil
	}
	if g := p.World.Grant(p.signer(), userID); g != nil && g.IsActive() {
		return u, nil
	}
	return nil, domain.InvalidCause(domain.ErrUnauthorized, "signer %s may not act for user %d", p.Event.SignerAddress, userID)
}

// checkCreateID enforces the id namespace of newly created entities
func checkCreateID(entityType domain.EntityType, id, offset int64) error {
	if id <= offset {
		return domain.Invalid("%s id %d is below the offset %d", entityType, id, offset)
	}
	return nil
}

func checkLength(field, value string, limit int) error {
	if limit > 0 && len([]rune(value)) > limit {
		return domain.Invalid("%s exceeds %d characters", field, limit)
	}
	return nil
}

// live reports whether r exists and is not deleted
func live[T any, PT interface {
	*T
	schema.Record
}](r PT) bool {
	return r != nil && !r.Version().IsDelete
}

package entitymanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-entity-indexer/internal/config"
	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/logger"
	"github.com/feral-file/ff-entity-indexer/internal/metadata"
	"github.com/feral-file/ff-entity-indexer/internal/metrics"
	"github.com/feral-file/ff-entity-indexer/internal/registry"
	"github.com/feral-file/ff-entity-indexer/internal/store"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

// Dispatcher receives the challenge events of committed transactions
type Dispatcher interface {
	Dispatch(eventType domain.ChallengeEventType, blockNumber uint64, blockTime time.Time, userID int64, extra map[string]any)
}

// BlockInput is one block of EntityManager transactions to apply
type BlockInput struct {
	Transactions   []domain.Transaction
	BlockNumber    uint64
	BlockTimestamp time.Time
	BlockHash      string
	// MetadataByCID holds prefetched metadata for events referencing a CID
	MetadataByCID map[string]json.RawMessage
	// Dispatcher is optional
	Dispatcher Dispatcher
}

// SkippedTransaction records why a transaction produced no changes
type SkippedTransaction struct {
	TxHash string
	Reason string
	Err    error
}

// BlockResult summarizes a committed block
type BlockResult struct {
	NumChanges       int
	ChangedEntityIDs map[domain.EntityType][]string
	Skipped          []SkippedTransaction
}

// Manager replays EntityManager transactions against the versioned entity store
type Manager struct {
	store      store.EntityStore
	config     config.EntityManagerConfig
	blacklist  registry.CIDBlacklist
	resolvers  map[domain.ActionEntity]Resolver
	cursorName string
}

// NewManager creates a manager. The cursor is moved with every committed block
// when cursorName is not empty.
func NewManager(st store.EntityStore, cfg config.EntityManagerConfig, blacklist registry.CIDBlacklist, cursorName string) *Manager {
	return &Manager{
		store:      st,
		config:     cfg,
		blacklist:  blacklist,
		resolvers:  DefaultResolvers(),
		cursorName: cursorName,
	}
}

// pendingTx is a decoded transaction. err is set when one of its logs could not be decoded.
type pendingTx struct {
	hash   string
	events []*domain.ManageEntityEvent
	err    error
}

// ApplyBlock validates and applies every transaction of the block, then
// commits all new versions and the cursor at once. A transaction that fails
// validation is skipped as a whole; any other error aborts the block.
func (m *Manager) ApplyBlock(ctx context.Context, in BlockInput) (*BlockResult, error) {
	ctx = logger.WithBlock(ctx, in.BlockNumber, in.BlockHash)
	txs := m.decodeBlock(in)

	lookups := &Lookups{}
	for _, tx := range txs {
		for _, ev := range tx.events {
			lookups.addUsers(ev.UserID)
			lookups.add(grantKey(ev.SignerAddress, ev.UserID))
			if r, ok := m.resolvers[on(ev.Action, ev.EntityType)]; ok {
				r.Prefetch(m.params(ev, nil), lookups)
			}
		}
	}

	world, err := m.fetch(ctx, lookups)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entities for block %d: %w", in.BlockNumber, err)
	}

	result := &BlockResult{ChangedEntityIDs: make(map[domain.EntityType][]string)}
	var challengeEvents []domain.ChallengeEvent
	for _, tx := range txs {
		if tx.err != nil {
			result.skip(ctx, tx.hash, tx.err)
			continue
		}
		events, err := m.replay(world, tx.events)
		if err != nil {
			world.rollbackTx()
			if !domain.IsSkippable(err) {
				return nil, fmt.Errorf("failed to apply transaction %s: %w", tx.hash, err)
			}
			result.skip(ctx, tx.hash, err)
			continue
		}
		world.commitTx()
		challengeEvents = append(challengeEvents, events...)
	}

	records, invalidate := world.changes()
	input := store.CommitBlockInput{NewRecords: records, Invalidate: invalidate}
	if m.cursorName != "" {
		input.Cursor = &store.BlockCursor{Name: m.cursorName, BlockNumber: in.BlockNumber}
	}
	if err := m.store.CommitBlock(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to commit block %d: %w", in.BlockNumber, err)
	}

	result.NumChanges = len(records)
	counts := make(map[domain.EntityType]int)
	seen := make(map[domain.EntityKey]bool)
	for _, r := range records {
		key := r.EntityKey()
		counts[key.Type]++
		if !seen[key] {
			seen[key] = true
			result.ChangedEntityIDs[key.Type] = append(result.ChangedEntityIDs[key.Type], key.ID)
		}
	}
	for t, n := range counts {
		metrics.Indexer().ObserveRecordsCommitted(string(t), n)
	}
	metrics.Indexer().ObserveBlockIndexed()

	if in.Dispatcher != nil {
		for _, e := range challengeEvents {
			in.Dispatcher.Dispatch(e.EventType, e.BlockNumber, e.BlockDatetime, e.UserID, e.Extra)
		}
	}

	logger.InfoCtx(ctx, "Block applied",
		zap.Int("transactions", len(in.Transactions)),
		zap.Int("changes", result.NumChanges),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("challenge_events", len(challengeEvents)))
	return result, nil
}

func (m *Manager) params(ev *domain.ManageEntityEvent, w *World) *Params {
	return &Params{Event: ev, World: w, Config: &m.config, Blacklist: m.blacklist}
}

// replay validates and stages every event of one transaction in order
func (m *Manager) replay(w *World, events []*domain.ManageEntityEvent) ([]domain.ChallengeEvent, error) {
	var challengeEvents []domain.ChallengeEvent
	for _, ev := range events {
		r, ok := m.resolvers[on(ev.Action, ev.EntityType)]
		if !ok {
			return nil, domain.Invalid("unsupported action %s on %s", ev.Action, ev.EntityType)
		}
		p := m.params(ev, w)
		if err := r.Validate(p); err != nil {
			return nil, err
		}
		res, err := r.Apply(p)
		if err != nil {
			return nil, err
		}
		for _, rec := range res.Records {
			w.stage(rec)
		}
		challengeEvents = append(challengeEvents, res.ChallengeEvents...)
	}
	return challengeEvents, nil
}

// decodeBlock turns raw logs into events. A transaction with an undecodable
// log keeps its error and is skipped during replay.
func (m *Manager) decodeBlock(in BlockInput) []pendingTx {
	txs := make([]pendingTx, 0, len(in.Transactions))
	for _, tx := range in.Transactions {
		pt := pendingTx{hash: tx.Hash}
		for _, raw := range tx.Events {
			ev, err := decodeEvent(raw, tx, in)
			if err != nil {
				pt.err = err
				pt.events = nil
				break
			}
			pt.events = append(pt.events, ev)
		}
		txs = append(txs, pt)
	}
	return txs
}

func decodeEvent(raw domain.RawEvent, tx domain.Transaction, in BlockInput) (*domain.ManageEntityEvent, error) {
	entityType, err := domain.ParseEntityType(raw.EntityType)
	if err != nil {
		return nil, domain.InvalidCause(err, "undecodable event")
	}
	action, err := domain.ParseAction(raw.Action)
	if err != nil {
		return nil, domain.InvalidCause(err, "undecodable event")
	}

	payload := metadata.ParsePayload(raw.Metadata)
	data := payload.Data
	if len(data) == 0 && payload.CID != "" {
		data = in.MetadataByCID[payload.CID]
	}

	return &domain.ManageEntityEvent{
		EntityID:       raw.EntityID,
		EntityType:     entityType,
		UserID:         raw.UserID,
		Action:         action,
		MetadataCID:    payload.CID,
		Metadata:       data,
		SignerAddress:  raw.Signer,
		BlockNumber:    in.BlockNumber,
		BlockTimestamp: in.BlockTimestamp,
		BlockHash:      in.BlockHash,
		TxHash:         tx.Hash,
		TxIndex:        tx.Index,
	}, nil
}

// fetch loads every entity the block may read in one pass per lookup kind,
// then once more for the owners of entities found in the first pass
func (m *Manager) fetch(ctx context.Context, l *Lookups) (*World, error) {
	base, err := m.store.FetchCurrent(ctx, dedupKeys(l.Keys))
	if err != nil {
		return nil, err
	}

	if len(l.Handles) > 0 || len(l.Wallets) > 0 {
		users, err := m.store.FetchUsersByHandleOrWallet(ctx, dedup(l.Handles), dedup(l.Wallets))
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if _, ok := base[u.EntityKey()]; !ok {
				base[u.EntityKey()] = u
			}
		}
	}

	var owners []domain.EntityKey
	for _, r := range base {
		owners = append(owners, dependents(r)...)
	}
	var missing []domain.EntityKey
	for _, key := range dedupKeys(owners) {
		if _, ok := base[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		more, err := m.store.FetchCurrent(ctx, missing)
		if err != nil {
			return nil, err
		}
		for k, r := range more {
			base[k] = r
		}
	}

	trackRoutes, playlistRoutes, err := m.fetchRoutes(ctx, l.Routes)
	if err != nil {
		return nil, err
	}
	return NewWorld(base, trackRoutes, playlistRoutes), nil
}

func (m *Manager) fetchRoutes(ctx context.Context, lookups []RouteLookup) ([]*schema.TrackRoute, []*schema.PlaylistRoute, error) {
	type query struct {
		owners []int64
		slugs  []string
	}
	queries := map[domain.EntityType]*query{
		domain.EntityTypeTrackRoute:    {},
		domain.EntityTypePlaylistRoute: {},
	}
	for _, rl := range lookups {
		q, ok := queries[rl.RouteType]
		if !ok {
			continue
		}
		q.owners = append(q.owners, rl.OwnerID)
		q.slugs = append(q.slugs, rl.TitleSlug)
	}

	var (
		trackRoutes    []*schema.TrackRoute
		playlistRoutes []*schema.PlaylistRoute
		err            error
	)
	if q := queries[domain.EntityTypeTrackRoute]; len(q.owners) > 0 {
		trackRoutes, err = m.store.FetchTrackRoutes(ctx, dedup(q.owners), dedup(q.slugs))
		if err != nil {
			return nil, nil, err
		}
	}
	if q := queries[domain.EntityTypePlaylistRoute]; len(q.owners) > 0 {
		playlistRoutes, err = m.store.FetchPlaylistRoutes(ctx, dedup(q.owners), dedup(q.slugs))
		if err != nil {
			return nil, nil, err
		}
	}
	return trackRoutes, playlistRoutes, nil
}

// dependents returns the keys a resolver may read through r
func dependents(r schema.Record) []domain.EntityKey {
	switch v := r.(type) {
	case *schema.Comment:
		return []domain.EntityKey{domain.IDKey(domain.EntityTypeTrack, v.EntityID)}
	case *schema.Track:
		return []domain.EntityKey{domain.IDKey(domain.EntityTypeUser, v.OwnerID)}
	case *schema.Playlist:
		return []domain.EntityKey{domain.IDKey(domain.EntityTypeUser, v.PlaylistOwnerID)}
	case *schema.ContestEvent:
		return []domain.EntityKey{domain.IDKey(domain.EntityTypeTrack, v.EntityID)}
	}
	return nil
}

func (r *BlockResult) skip(ctx context.Context, txHash string, err error) {
	reason := "validation"
	if errors.Is(err, domain.ErrMissingMetadata) {
		reason = "missing_metadata"
	}
	r.Skipped = append(r.Skipped, SkippedTransaction{TxHash: txHash, Reason: reason, Err: err})
	metrics.Indexer().ObserveTransactionSkipped(reason)
	logger.InfoCtx(ctx, "Transaction skipped",
		zap.String("tx_hash", txHash),
		zap.String("reason", reason),
		zap.Error(err))
}

func dedup[T comparable](in []T) []T {
	seen := make(map[T]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func dedupKeys(keys []domain.EntityKey) []domain.EntityKey {
	out := dedup(keys)
	slices.SortFunc(out, func(a, b domain.EntityKey) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

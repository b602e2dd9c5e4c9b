package entitymanager

import (
	"slices"
	"strings"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

// World is the entity state visible to resolvers while one block is replayed.
//
// It is made of three layers: base holds the current rows fetched from storage,
// overlay holds the version chains produced by earlier transactions of the block,
// and staged holds the versions of the transaction being replayed. Resolvers
// only read; the orchestrator appends.
type World struct {
	base      map[domain.EntityKey]schema.Record
	originals map[domain.EntityKey]schema.Record
	overlay   map[domain.EntityKey][]schema.Record
	// order lists every overlay record in replay order
	order []schema.Record

	staged      map[domain.EntityKey][]schema.Record
	stagedOrder []schema.Record

	trackRoutes    []*schema.TrackRoute
	playlistRoutes []*schema.PlaylistRoute
}

// NewWorld creates a world over the fetched current rows and stored routes
func NewWorld(base map[domain.EntityKey]schema.Record, trackRoutes []*schema.TrackRoute, playlistRoutes []*schema.PlaylistRoute) *World {
	if base == nil {
		base = make(map[domain.EntityKey]schema.Record)
	}
	originals := make(map[domain.EntityKey]schema.Record, len(base))
	for k, r := range base {
		originals[k] = r.Clone()
	}
	return &World{
		base:           base,
		originals:      originals,
		overlay:        make(map[domain.EntityKey][]schema.Record),
		staged:         make(map[domain.EntityKey][]schema.Record),
		trackRoutes:    trackRoutes,
		playlistRoutes: playlistRoutes,
	}
}

// resolve returns the latest version of key: the tail of its overlay chain,
// or the base row when the block has not touched it
func resolve(base map[domain.EntityKey]schema.Record, overlay map[domain.EntityKey][]schema.Record, key domain.EntityKey) schema.Record {
	if chain := overlay[key]; len(chain) > 0 {
		return chain[len(chain)-1]
	}
	return base[key]
}

// Get returns the latest version of key, including versions staged by the current transaction
func (w *World) Get(key domain.EntityKey) schema.Record {
	if chain := w.staged[key]; len(chain) > 0 {
		return chain[len(chain)-1]
	}
	return resolve(w.base, w.overlay, key)
}

func get[T any, PT interface {
	*T
	schema.Record
}](w *World, key domain.EntityKey) PT {
	r, _ := w.Get(key).(PT)
	return r
}

func (w *World) User(userID int64) *schema.User {
	return get[schema.User](w, domain.IDKey(domain.EntityTypeUser, userID))
}

func (w *World) Track(trackID int64) *schema.Track {
	return get[schema.Track](w, domain.IDKey(domain.EntityTypeTrack, trackID))
}

func (w *World) Playlist(playlistID int64) *schema.Playlist {
	return get[schema.Playlist](w, domain.IDKey(domain.EntityTypePlaylist, playlistID))
}

func (w *World) Comment(commentID int64) *schema.Comment {
	return get[schema.Comment](w, domain.IDKey(domain.EntityTypeComment, commentID))
}

func (w *World) ContestEvent(eventID int64) *schema.ContestEvent {
	return get[schema.ContestEvent](w, domain.IDKey(domain.EntityTypeEvent, eventID))
}

func (w *World) TrackRoute(trackID int64) *schema.TrackRoute {
	return get[schema.TrackRoute](w, domain.IDKey(domain.EntityTypeTrackRoute, trackID))
}

func (w *World) PlaylistRoute(playlistID int64) *schema.PlaylistRoute {
	return get[schema.PlaylistRoute](w, domain.IDKey(domain.EntityTypePlaylistRoute, playlistID))
}

func (w *World) Grant(granteeAddress string, userID int64) *schema.Grant {
	return get[schema.Grant](w, grantKey(granteeAddress, userID))
}

func (w *World) DashboardWalletUser(wallet string) *schema.DashboardWalletUser {
	return get[schema.DashboardWalletUser](w, dashboardWalletKey(wallet))
}

func (w *World) Follow(followerID, followeeID int64) *schema.Follow {
	return get[schema.Follow](w, domain.NewEntityKey(domain.EntityTypeFollow, followerID, followeeID))
}

func (w *World) Subscription(subscriberID, userID int64) *schema.Subscription {
	return get[schema.Subscription](w, domain.NewEntityKey(domain.EntityTypeSubscription, subscriberID, userID))
}

func (w *World) Save(userID, itemID int64, saveType schema.SaveType) *schema.Save {
	return get[schema.Save](w, domain.NewEntityKey(domain.EntityTypeSave, userID, itemID, saveType))
}

func (w *World) Repost(userID, itemID int64, repostType schema.SaveType) *schema.Repost {
	return get[schema.Repost](w, domain.NewEntityKey(domain.EntityTypeRepost, userID, itemID, repostType))
}

// UserByHandle returns the live user owning the lowercased handle, if any
func (w *World) UserByHandle(handleLC string) *schema.User {
	return w.findUser(func(u *schema.User) bool { return u.HandleLC == handleLC })
}

// UserByWallet returns the live user owning the wallet, if any
func (w *World) UserByWallet(wallet string) *schema.User {
	wallet = strings.ToLower(wallet)
	return w.findUser(func(u *schema.User) bool { return u.Wallet == wallet })
}

func (w *World) findUser(match func(*schema.User) bool) *schema.User {
	seen := make(map[domain.EntityKey]bool)
	check := func(key domain.EntityKey) *schema.User {
		if key.Type != domain.EntityTypeUser || seen[key] {
			return nil
		}
		seen[key] = true
		u, _ := w.Get(key).(*schema.User)
		if u != nil && !u.IsDelete && match(u) {
			return u
		}
		return nil
	}

	for key := range w.staged {
		if u := check(key); u != nil {
			return u
		}
	}
	for key := range w.overlay {
		if u := check(key); u != nil {
			return u
		}
	}
	for key := range w.base {
		if u := check(key); u != nil {
			return u
		}
	}
	return nil
}

// routeRow is the part of a track or playlist route used for collision handling
type routeRow struct {
	Slug        string
	TitleSlug   string
	CollisionID int
	OwnerID     int64
	ItemID      int64
}

func toRouteRow(r schema.Record) (routeRow, bool) {
	switch v := r.(type) {
	case *schema.TrackRoute:
		return routeRow{v.Slug, v.TitleSlug, v.CollisionID, v.OwnerID, v.TrackID}, true
	case *schema.PlaylistRoute:
		return routeRow{v.Slug, v.TitleSlug, v.CollisionID, v.OwnerID, v.PlaylistID}, true
	}
	return routeRow{}, false
}

// routes returns every route row of an owner of the given route type,
// stored or produced earlier in the block, current or not
func (w *World) routes(routeType domain.EntityType, ownerID int64) []routeRow {
	var rows []routeRow
	add := func(r schema.Record) {
		if r.EntityType() != routeType {
			return
		}
		if row, ok := toRouteRow(r); ok && row.OwnerID == ownerID {
			rows = append(rows, row)
		}
	}

	switch routeType {
	case domain.EntityTypeTrackRoute:
		for _, r := range w.trackRoutes {
			add(r)
		}
	case domain.EntityTypePlaylistRoute:
		for _, r := range w.playlistRoutes {
			add(r)
		}
	}
	for _, r := range w.order {
		add(r)
	}
	for _, r := range w.stagedOrder {
		add(r)
	}
	return rows
}

// stage appends a new version produced by the transaction being replayed
func (w *World) stage(r schema.Record) {
	key := r.EntityKey()
	w.staged[key] = append(w.staged[key], r)
	w.stagedOrder = append(w.stagedOrder, r)
}

// commitTx moves the staged versions into the overlay
func (w *World) commitTx() {
	for _, r := range w.stagedOrder {
		key := r.EntityKey()
		w.overlay[key] = append(w.overlay[key], r)
		w.order = append(w.order, r)
	}
	w.rollbackTx()
}

// rollbackTx discards the staged versions
func (w *World) rollbackTx() {
	clear(w.staged)
	w.stagedOrder = nil
}

// changes returns the new rows in replay order, with only the last version of
// each key marked current, and the prior current rows to invalidate
func (w *World) changes() ([]schema.Record, []schema.Record) {
	records := make([]schema.Record, 0, len(w.order))
	for _, r := range w.order {
		chain := w.overlay[r.EntityKey()]
		r.Version().IsCurrent = chain[len(chain)-1] == r
		records = append(records, r)
	}

	keys := make([]domain.EntityKey, 0, len(w.overlay))
	for key := range w.overlay {
		if _, ok := w.originals[key]; ok {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b domain.EntityKey) int {
		return strings.Compare(a.String(), b.String())
	})

	invalidate := make([]schema.Record, 0, len(keys))
	for _, key := range keys {
		invalidate = append(invalidate, w.originals[key])
	}
	return records, invalidate
}

func grantKey(granteeAddress string, userID int64) domain.EntityKey {
	return domain.NewEntityKey(domain.EntityTypeGrant, strings.ToLower(granteeAddress), userID)
}

func dashboardWalletKey(wallet string) domain.EntityKey {
	return domain.EntityKey{Type: domain.EntityTypeDashboardWalletUser, ID: strings.ToLower(wallet)}
}

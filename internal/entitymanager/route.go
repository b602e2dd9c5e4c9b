package entitymanager

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

// sanitizeSlug turns a title into a permalink slug: lowercase, accents
// stripped, punctuation dropped and whitespace runs collapsed into '-'.
// Titles without any letter or digit fall back to the item id.
func sanitizeSlug(title string, itemID int64) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, title)
	if err != nil {
		s = title
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			pendingDash = true
		}
	}

	if b.Len() == 0 {
		return strconv.FormatInt(itemID, 10)
	}
	return b.String()
}

func routeSlug(titleSlug string, collisionID int) string {
	if collisionID == 0 {
		return titleSlug
	}
	return fmt.Sprintf("%s-%d", titleSlug, collisionID)
}

func currentRoute(w *World, routeType domain.EntityType, itemID int64) (routeRow, bool) {
	var r schema.Record
	switch routeType {
	case domain.EntityTypeTrackRoute:
		if tr := w.TrackRoute(itemID); tr != nil {
			r = tr
		}
	case domain.EntityTypePlaylistRoute:
		if pr := w.PlaylistRoute(itemID); pr != nil {
			r = pr
		}
	}
	if r == nil {
		return routeRow{}, false
	}
	return toRouteRow(r)
}

// nextRoute computes the route of an item after it is created or renamed.
// It returns false when the item's current route already matches the title.
//
// Colliding titles of one owner get collision ids max(existing)+1, looking at
// both stored routes and routes produced earlier in the block, and the
// suffixed slug is checked again until it is unused.
func nextRoute(w *World, routeType domain.EntityType, ownerID, itemID int64, title string) (routeRow, bool) {
	titleSlug := sanitizeSlug(title, itemID)
	if cur, ok := currentRoute(w, routeType, itemID); ok && cur.OwnerID == ownerID && cur.TitleSlug == titleSlug {
		return routeRow{}, false
	}

	rows := w.routes(routeType, ownerID)
	taken := make(map[string]bool, len(rows))
	maxCollision := -1
	for _, r := range rows {
		taken[r.Slug] = true
		if r.TitleSlug != titleSlug {
			continue
		}
		// A slug this item used before is handed back to it
		if r.ItemID == itemID {
			return routeRow{Slug: r.Slug, TitleSlug: titleSlug, CollisionID: r.CollisionID, OwnerID: ownerID, ItemID: itemID}, true
		}
		maxCollision = max(maxCollision, r.CollisionID)
	}

	collisionID := 0
	hasCollision := taken[titleSlug]
	if maxCollision >= 0 {
		hasCollision = true
		collisionID = maxCollision
	}
	slug := titleSlug
	for hasCollision {
		collisionID++
		slug = routeSlug(titleSlug, collisionID)
		hasCollision = taken[slug]
	}

	return routeRow{Slug: slug, TitleSlug: titleSlug, CollisionID: collisionID, OwnerID: ownerID, ItemID: itemID}, true
}

// routeRecord builds the next version of an item's route
func (p *Params) routeRecord(routeType domain.EntityType, row routeRow) schema.Record {
	switch routeType {
	case domain.EntityTypeTrackRoute:
		r := &schema.TrackRoute{}
		if cur := p.World.TrackRoute(row.ItemID); cur != nil {
			r = cur.Clone().(*schema.TrackRoute)
		}
		r.Slug, r.TitleSlug, r.CollisionID, r.OwnerID, r.TrackID = row.Slug, row.TitleSlug, row.CollisionID, row.OwnerID, row.ItemID
		return p.stamp(r)
	default:
		r := &schema.PlaylistRoute{}
		if cur := p.World.PlaylistRoute(row.ItemID); cur != nil {
			r = cur.Clone().(*schema.PlaylistRoute)
		}
		r.Slug, r.TitleSlug, r.CollisionID, r.OwnerID, r.PlaylistID = row.Slug, row.TitleSlug, row.CollisionID, row.OwnerID, row.ItemID
		return p.stamp(r)
	}
}

// prefetchRoute asks for the item's current route and the owner's routes sharing its title slug
func prefetchRoute(l *Lookups, routeType domain.EntityType, ownerID, itemID int64, title string) {
	l.add(domain.IDKey(routeType, itemID))
	l.Routes = append(l.Routes, RouteLookup{
		RouteType: routeType,
		OwnerID:   ownerID,
		TitleSlug: sanitizeSlug(title, itemID),
	})
}

package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

type keyColumn struct {
	name  string
	isInt bool
}

// entityTable describes how the rows of one entity type are keyed, fetched and inserted
type entityTable struct {
	table   string
	columns []keyColumn
	// fields is the number of inserted columns per row, used for batch sizing
	fields int
	fetch  func(tx *gorm.DB, where string, args []any) ([]schema.Record, error)
	insert func(tx *gorm.DB, records []schema.Record, batchSize int) error
}

func intCol(name string) keyColumn { return keyColumn{name: name, isInt: true} }

func strCol(name string) keyColumn { return keyColumn{name: name} }

var entityTables = map[domain.EntityType]entityTable{
	domain.EntityTypeUser: {
		table: "users", columns: []keyColumn{intCol("user_id")}, fields: 21,
		fetch: fetchRows[schema.User], insert: insertRows[schema.User],
	},
	domain.EntityTypeTrack: {
		table: "tracks", columns: []keyColumn{intCol("track_id")}, fields: 25,
		fetch: fetchRows[schema.Track], insert: insertRows[schema.Track],
	},
	domain.EntityTypePlaylist: {
		table: "playlists", columns: []keyColumn{intCol("playlist_id")}, fields: 16,
		fetch: fetchRows[schema.Playlist], insert: insertRows[schema.Playlist],
	},
	domain.EntityTypeTrackRoute: {
		table: "track_routes", columns: []keyColumn{intCol("track_id")}, fields: 12,
		fetch: fetchRows[schema.TrackRoute], insert: insertRows[schema.TrackRoute],
	},
	domain.EntityTypePlaylistRoute: {
		table: "playlist_routes", columns: []keyColumn{intCol("playlist_id")}, fields: 12,
		fetch: fetchRows[schema.PlaylistRoute], insert: insertRows[schema.PlaylistRoute],
	},
	domain.EntityTypeFollow: {
		table: "follows", columns: []keyColumn{intCol("follower_user_id"), intCol("followee_user_id")}, fields: 9,
		fetch: fetchRows[schema.Follow], insert: insertRows[schema.Follow],
	},
	domain.EntityTypeSubscription: {
		table: "subscriptions", columns: []keyColumn{intCol("subscriber_id"), intCol("user_id")}, fields: 9,
		fetch: fetchRows[schema.Subscription], insert: insertRows[schema.Subscription],
	},
	domain.EntityTypeSave: {
		table: "saves", columns: []keyColumn{intCol("user_id"), intCol("save_item_id"), strCol("save_type")}, fields: 10,
		fetch: fetchRows[schema.Save], insert: insertRows[schema.Save],
	},
	domain.EntityTypeRepost: {
		table: "reposts", columns: []keyColumn{intCol("user_id"), intCol("repost_item_id"), strCol("repost_type")}, fields: 10,
		fetch: fetchRows[schema.Repost], insert: insertRows[schema.Repost],
	},
	domain.EntityTypeGrant: {
		table: "grants", columns: []keyColumn{strCol("grantee_address"), intCol("user_id")}, fields: 11,
		fetch: fetchRows[schema.Grant], insert: insertRows[schema.Grant],
	},
	domain.EntityTypeDashboardWalletUser: {
		table: "dashboard_wallet_users", columns: []keyColumn{strCol("wallet")}, fields: 9,
		fetch: fetchRows[schema.DashboardWalletUser], insert: insertRows[schema.DashboardWalletUser],
	},
	domain.EntityTypeComment: {
		table: "comments", columns: []keyColumn{intCol("comment_id")}, fields: 15,
		fetch: fetchRows[schema.Comment], insert: insertRows[schema.Comment],
	},
	domain.EntityTypeEvent: {
		table: "events", columns: []keyColumn{intCol("event_id")}, fields: 14,
		fetch: fetchRows[schema.ContestEvent], insert: insertRows[schema.ContestEvent],
	},
}

func fetchRows[T any, PT interface {
	*T
	schema.Record
}](tx *gorm.DB, where string, args []any) ([]schema.Record, error) {
	var rows []T
	if err := tx.Where("is_current = ?", true).Where(where, args...).Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]schema.Record, 0, len(rows))
	for i := range rows {
		records = append(records, PT(&rows[i]))
	}
	return records, nil
}

func insertRows[T any, PT interface {
	*T
	schema.Record
}](tx *gorm.DB, records []schema.Record, batchSize int) error {
	rows := make([]*T, 0, len(records))
	for _, r := range records {
		row, ok := r.(PT)
		if !ok {
			return fmt.Errorf("unexpected record type %T", r)
		}
		rows = append(rows, (*T)(row))
	}
	return tx.CreateInBatches(rows, batchSize).Error
}

// parseKey splits a key id into typed column values
func parseKey(t entityTable, key domain.EntityKey) ([]any, error) {
	parts := strings.SplitN(key.ID, ":", len(t.columns))
	if len(parts) != len(t.columns) {
		return nil, fmt.Errorf("invalid key %s: expected %d parts", key, len(t.columns))
	}

	values := make([]any, len(parts))
	for i, c := range t.columns {
		if !c.isInt {
			values[i] = parts[i]
			continue
		}
		v, err := strconv.ParseInt(parts[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid key %s: %w", key, err)
		}
		values[i] = v
	}
	return values, nil
}

// keyCondition builds a WHERE clause matching any of the given keys.
// Composite keys are OR-chained since SQLite has no row-value IN lists.
func keyCondition(t entityTable, keys []domain.EntityKey) (string, []any, error) {
	if len(t.columns) == 1 {
		values := make([]any, 0, len(keys))
		for _, k := range keys {
			v, err := parseKey(t, k)
			if err != nil {
				return "", nil, err
			}
			values = append(values, v[0])
		}
		return t.columns[0].name + " IN ?", []any{values}, nil
	}

	parts := make([]string, len(t.columns))
	for i, c := range t.columns {
		parts[i] = c.name + " = ?"
	}
	tuple := "(" + strings.Join(parts, " AND ") + ")"

	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*len(t.columns))
	for _, k := range keys {
		v, err := parseKey(t, k)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, tuple)
		args = append(args, v...)
	}
	return "(" + strings.Join(conds, " OR ") + ")", args, nil
}

// groupKeys groups unique keys per entity type in a stable order
func groupKeys(keys []domain.EntityKey) ([]domain.EntityType, map[domain.EntityType][]domain.EntityKey) {
	seen := make(map[domain.EntityKey]bool, len(keys))
	grouped := make(map[domain.EntityType][]domain.EntityKey)
	var types []domain.EntityType
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		if _, ok := grouped[k.Type]; !ok {
			types = append(types, k.Type)
		}
		grouped[k.Type] = append(grouped[k.Type], k)
	}
	slices.Sort(types)
	return types, grouped
}

// FetchCurrent returns the current row of every key that exists
func (s *gormStore) FetchCurrent(ctx context.Context, keys []domain.EntityKey) (map[domain.EntityKey]schema.Record, error) {
	result := make(map[domain.EntityKey]schema.Record, len(keys))
	types, grouped := groupKeys(keys)

	db := s.db.WithContext(ctx)
	for _, entityType := range types {
		t, ok := entityTables[entityType]
		if !ok {
			return nil, fmt.Errorf("unsupported entity type %s", entityType)
		}

		typeKeys := grouped[entityType]
		batchSize := calculateSafeBatchSize(len(typeKeys), len(t.columns))
		for start := 0; start < len(typeKeys); start += batchSize {
			end := min(start+batchSize, len(typeKeys))
			where, args, err := keyCondition(t, typeKeys[start:end])
			if err != nil {
				return nil, err
			}

			records, err := t.fetch(db, where, args)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch current %s: %w", entityType, err)
			}
			for _, r := range records {
				result[r.EntityKey()] = r
			}
		}
	}

	return result, nil
}

// FetchUsersByHandleOrWallet returns current users owning any of the lowercased handles or wallets
func (s *gormStore) FetchUsersByHandleOrWallet(ctx context.Context, handles []string, wallets []string) ([]*schema.User, error) {
	if len(handles) == 0 && len(wallets) == 0 {
		return nil, nil
	}

	query := s.db.WithContext(ctx).Where("is_current = ?", true)
	switch {
	case len(handles) > 0 && len(wallets) > 0:
		query = query.Where("(handle_lc IN ? OR wallet IN ?)", handles, wallets)
	case len(handles) > 0:
		query = query.Where("handle_lc IN ?", handles)
	default:
		query = query.Where("wallet IN ?", wallets)
	}

	var users []*schema.User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch users by handle or wallet: %w", err)
	}
	return users, nil
}

// routeSlugCondition matches routes with one of the title slugs, and routes
// whose slug is a suffixed form of one (a track titled "Foo 1" owns the slug
// a second "Foo" would otherwise take)
func (s *gormStore) routeSlugCondition(titleSlugs []string) *gorm.DB {
	cond := s.db.Where("title_slug IN ?", titleSlugs)
	for _, ts := range titleSlugs {
		cond = cond.Or("slug LIKE ?", ts+"-%")
	}
	return cond
}

// FetchTrackRoutes returns every route row of the owners that the title slugs may collide with
func (s *gormStore) FetchTrackRoutes(ctx context.Context, ownerIDs []int64, titleSlugs []string) ([]*schema.TrackRoute, error) {
	if len(ownerIDs) == 0 || len(titleSlugs) == 0 {
		return nil, nil
	}

	var routes []*schema.TrackRoute
	err := s.db.WithContext(ctx).
		Where("owner_id IN ?", ownerIDs).
		Where(s.routeSlugCondition(titleSlugs)).
		Order("row_id").
		Find(&routes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch track routes: %w", err)
	}
	return routes, nil
}

// FetchPlaylistRoutes returns every route row of the owners that the title slugs may collide with
func (s *gormStore) FetchPlaylistRoutes(ctx context.Context, ownerIDs []int64, titleSlugs []string) ([]*schema.PlaylistRoute, error) {
	if len(ownerIDs) == 0 || len(titleSlugs) == 0 {
		return nil, nil
	}

	var routes []*schema.PlaylistRoute
	err := s.db.WithContext(ctx).
		Where("owner_id IN ?", ownerIDs).
		Where(s.routeSlugCondition(titleSlugs)).
		Order("row_id").
		Find(&routes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist routes: %w", err)
	}
	return routes, nil
}

// CommitBlock atomically invalidates the prior current rows, inserts the new
// rows in order and stores the cursor
func (s *gormStore) CommitBlock(ctx context.Context, input CommitBlockInput) error {
	if err := checkSingleCurrent(input.NewRecords); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Flip prior current rows first so the partial unique indexes accept the new rows
		rowIDs := make(map[domain.EntityType][]int64)
		for _, r := range input.Invalidate {
			rowIDs[r.EntityType()] = append(rowIDs[r.EntityType()], r.Version().RowID)
		}
		for _, entityType := range sortedTypes(rowIDs) {
			t, ok := entityTables[entityType]
			if !ok {
				return fmt.Errorf("unsupported entity type %s", entityType)
			}

			ids := rowIDs[entityType]
			batchSize := calculateSafeBatchSize(len(ids), 1)
			for start := 0; start < len(ids); start += batchSize {
				batch := ids[start:min(start+batchSize, len(ids))]
				res := tx.Table(t.table).
					Where("row_id IN ? AND is_current = ?", batch, true).
					Update("is_current", false)
				if res.Error != nil {
					return fmt.Errorf("failed to invalidate %s rows: %w", entityType, res.Error)
				}
				if res.RowsAffected != int64(len(batch)) {
					return fmt.Errorf("failed to invalidate %s rows: %d of %d rows were still current",
						entityType, res.RowsAffected, len(batch))
				}
			}
		}

		records := make(map[domain.EntityType][]schema.Record)
		for _, r := range input.NewRecords {
			records[r.EntityType()] = append(records[r.EntityType()], r)
		}
		for _, entityType := range sortedTypes(records) {
			t, ok := entityTables[entityType]
			if !ok {
				return fmt.Errorf("unsupported entity type %s", entityType)
			}

			rows := records[entityType]
			if err := t.insert(tx, rows, calculateSafeBatchSize(len(rows), t.fields)); err != nil {
				return fmt.Errorf("failed to insert %s rows: %w", entityType, err)
			}
		}

		if input.Cursor != nil {
			if err := setBlockCursor(tx, input.Cursor.Name, input.Cursor.BlockNumber); err != nil {
				return err
			}
		}

		return nil
	})
}

// checkSingleCurrent verifies that at most one new record per key is current
func checkSingleCurrent(records []schema.Record) error {
	current := make(map[domain.EntityKey]bool, len(records))
	for _, r := range records {
		if !r.Version().IsCurrent {
			continue
		}
		key := r.EntityKey()
		if current[key] {
			return fmt.Errorf("more than one current version of %s", key)
		}
		current[key] = true
	}
	return nil
}

func sortedTypes[V any](m map[domain.EntityType]V) []domain.EntityType {
	types := make([]domain.EntityType, 0, len(m))
	for t := range m {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// CountReposts returns the number of current, non-deleted reposts of an item
func (s *gormStore) CountReposts(ctx context.Context, itemID int64, repostType schema.SaveType) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&schema.Repost{}).
		Where("repost_item_id = ? AND repost_type = ? AND is_current = ? AND is_delete = ?", itemID, repostType, true, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count reposts: %w", err)
	}
	return count, nil
}

// CountSaves returns the number of current, non-deleted saves of an item
func (s *gormStore) CountSaves(ctx context.Context, itemID int64, saveType schema.SaveType) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&schema.Save{}).
		Where("save_item_id = ? AND save_type = ? AND is_current = ? AND is_delete = ?", itemID, saveType, true, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count saves: %w", err)
	}
	return count, nil
}

// CountFollowers returns the number of current, non-deleted follows of a user
func (s *gormStore) CountFollowers(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&schema.Follow{}).
		Where("followee_user_id = ? AND is_current = ? AND is_delete = ?", userID, true, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count followers: %w", err)
	}
	return count, nil
}

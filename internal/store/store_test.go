package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

// =============================================================================
// Test Data Builders
// =============================================================================

var testBlockTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func buildVersion(blockNumber uint64, txHash string) schema.Versioned {
	return schema.Versioned{
		IsCurrent:   true,
		Blocknumber: blockNumber,
		Blockhash:   "0xblock",
		Txhash:      txHash,
		CreatedAt:   testBlockTime,
		UpdatedAt:   testBlockTime,
	}
}

func buildTestUser(userID int64, handle, wallet string, blockNumber uint64) *schema.User {
	return &schema.User{
		Versioned: buildVersion(blockNumber, "0xtx"),
		UserID:    userID,
		Handle:    handle,
		HandleLC:  handle,
		Wallet:    wallet,
	}
}

func buildTestTrack(trackID, ownerID int64, title string, blockNumber uint64) *schema.Track {
	return &schema.Track{
		Versioned: buildVersion(blockNumber, "0xtx"),
		TrackID:   trackID,
		OwnerID:   ownerID,
		Title:     title,
		Genre:     "Rock",
	}
}

func buildTestFollow(follower, followee int64, isDelete bool, blockNumber uint64) *schema.Follow {
	f := &schema.Follow{
		Versioned:      buildVersion(blockNumber, "0xtx"),
		FollowerUserID: follower,
		FolloweeUserID: followee,
	}
	f.IsDelete = isDelete
	return f
}

// commitRecords commits the given records as a fresh block
func commitRecords(t *testing.T, store Store, records ...schema.Record) {
	t.Helper()
	require.NoError(t, store.CommitBlock(context.Background(), CommitBlockInput{NewRecords: records}))
}

// =============================================================================
// Test: FetchCurrent
// =============================================================================

func testFetchCurrent(t *testing.T, store Store) {
	ctx := context.Background()

	commitRecords(t, store,
		buildTestUser(1, "alice", "0xaaa", 1),
		buildTestUser(2, "bob", "0xbbb", 1),
		buildTestTrack(10, 1, "Song", 1),
		buildTestFollow(1, 2, false, 1),
		&schema.Grant{Versioned: buildVersion(1, "0xtx"), GranteeAddress: "0xccc", UserID: 1, IsApproved: true},
		&schema.Save{Versioned: buildVersion(1, "0xtx"), UserID: 2, SaveItemID: 10, SaveType: schema.SaveTypeTrack},
		&schema.DashboardWalletUser{Versioned: buildVersion(1, "0xtx"), Wallet: "0xddd", UserID: 2},
	)

	t.Run("returns existing current rows keyed by entity key", func(t *testing.T) {
		keys := []domain.EntityKey{
			domain.IDKey(domain.EntityTypeUser, 1),
			domain.IDKey(domain.EntityTypeUser, 2),
			domain.IDKey(domain.EntityTypeUser, 3),
			domain.IDKey(domain.EntityTypeTrack, 10),
			domain.NewEntityKey(domain.EntityTypeFollow, 1, 2),
			domain.NewEntityKey(domain.EntityTypeFollow, 2, 1),
			domain.NewEntityKey(domain.EntityTypeGrant, "0xccc", 1),
			domain.NewEntityKey(domain.EntityTypeSave, 2, 10, schema.SaveTypeTrack),
			{Type: domain.EntityTypeDashboardWalletUser, ID: "0xddd"},
		}

		records, err := store.FetchCurrent(ctx, keys)
		require.NoError(t, err)
		assert.Len(t, records, 7)

		user, ok := records[domain.IDKey(domain.EntityTypeUser, 2)].(*schema.User)
		require.True(t, ok)
		assert.Equal(t, "bob", user.Handle)
		assert.NotZero(t, user.RowID)

		_, ok = records[domain.IDKey(domain.EntityTypeUser, 3)]
		assert.False(t, ok)
		_, ok = records[domain.NewEntityKey(domain.EntityTypeFollow, 2, 1)]
		assert.False(t, ok)

		grant, ok := records[domain.NewEntityKey(domain.EntityTypeGrant, "0xccc", 1)].(*schema.Grant)
		require.True(t, ok)
		assert.True(t, grant.IsActive())
	})

	t.Run("duplicate keys are fetched once", func(t *testing.T) {
		key := domain.IDKey(domain.EntityTypeTrack, 10)
		records, err := store.FetchCurrent(ctx, []domain.EntityKey{key, key})
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("unknown entity type fails", func(t *testing.T) {
		_, err := store.FetchCurrent(ctx, []domain.EntityKey{{Type: "Unknown", ID: "1"}})
		assert.Error(t, err)
	})

	t.Run("malformed key fails", func(t *testing.T) {
		_, err := store.FetchCurrent(ctx, []domain.EntityKey{{Type: domain.EntityTypeFollow, ID: "1"}})
		assert.Error(t, err)
	})
}

// =============================================================================
// Test: CommitBlock
// =============================================================================

func testCommitBlock(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("invalidates prior rows and keeps a single current row", func(t *testing.T) {
		commitRecords(t, store, buildTestTrack(20, 1, "First", 5))

		key := domain.IDKey(domain.EntityTypeTrack, 20)
		existing, err := store.FetchCurrent(ctx, []domain.EntityKey{key})
		require.NoError(t, err)
		original := existing[key]
		require.NotNil(t, original)

		second := original.Clone().(*schema.Track)
		second.NextVersion(6, "0xblock6", "0xtx6a", testBlockTime)
		second.Title = "Second"
		second.IsCurrent = false
		third := second.Clone().(*schema.Track)
		third.NextVersion(6, "0xblock6", "0xtx6b", testBlockTime)
		third.Title = "Third"

		err = store.CommitBlock(ctx, CommitBlockInput{
			NewRecords: []schema.Record{second, third},
			Invalidate: []schema.Record{original},
			Cursor:     &BlockCursor{Name: "entity_manager", BlockNumber: 6},
		})
		require.NoError(t, err)

		current, err := store.FetchCurrent(ctx, []domain.EntityKey{key})
		require.NoError(t, err)
		track := current[key].(*schema.Track)
		assert.Equal(t, "Third", track.Title)
		assert.Greater(t, track.RowID, second.RowID)

		cursor, err := store.GetBlockCursor(ctx, "entity_manager")
		require.NoError(t, err)
		assert.Equal(t, uint64(6), cursor)
	})

	t.Run("two current versions of one key are rejected", func(t *testing.T) {
		err := store.CommitBlock(ctx, CommitBlockInput{
			NewRecords: []schema.Record{buildTestTrack(30, 1, "A", 7), buildTestTrack(30, 1, "B", 7)},
		})
		assert.Error(t, err)
	})

	t.Run("stale invalidation rolls back the whole block", func(t *testing.T) {
		commitRecords(t, store, buildTestTrack(40, 1, "Stale", 8))
		key := domain.IDKey(domain.EntityTypeTrack, 40)
		existing, err := store.FetchCurrent(ctx, []domain.EntityKey{key})
		require.NoError(t, err)
		original := existing[key]

		next := original.Clone().(*schema.Track)
		next.NextVersion(9, "0xblock9", "0xtx9", testBlockTime)
		commitRecordsErr := store.CommitBlock(ctx, CommitBlockInput{
			NewRecords: []schema.Record{next},
			Invalidate: []schema.Record{original},
		})
		require.NoError(t, commitRecordsErr)

		// Replaying against the same snapshot must fail since the row is no longer current
		replay := original.Clone().(*schema.Track)
		replay.NextVersion(10, "0xblock10", "0xtx10", testBlockTime)
		other := buildTestUser(99, "rolled", "0x999", 10)
		err = store.CommitBlock(ctx, CommitBlockInput{
			NewRecords: []schema.Record{replay, other},
			Invalidate: []schema.Record{original},
			Cursor:     &BlockCursor{Name: "stale", BlockNumber: 10},
		})
		assert.Error(t, err)

		records, err := store.FetchCurrent(ctx, []domain.EntityKey{domain.IDKey(domain.EntityTypeUser, 99)})
		require.NoError(t, err)
		assert.Empty(t, records)

		cursor, err := store.GetBlockCursor(ctx, "stale")
		require.NoError(t, err)
		assert.Equal(t, uint64(0), cursor)
	})
}

// =============================================================================
// Test: Lookups
// =============================================================================

func testLookups(t *testing.T, store Store) {
	ctx := context.Background()

	commitRecords(t, store,
		buildTestUser(1, "alice", "0xaaa", 1),
		buildTestUser(2, "bob", "0xbbb", 1),
		buildTestUser(3, "carol", "0xccc", 1),
	)

	t.Run("users by handle or wallet", func(t *testing.T) {
		users, err := store.FetchUsersByHandleOrWallet(ctx, []string{"alice"}, []string{"0xccc"})
		require.NoError(t, err)
		ids := []int64{}
		for _, u := range users {
			ids = append(ids, u.UserID)
		}
		assert.ElementsMatch(t, []int64{1, 3}, ids)

		users, err = store.FetchUsersByHandleOrWallet(ctx, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, users)
	})

	t.Run("routes include non-current rows", func(t *testing.T) {
		old := &schema.TrackRoute{Versioned: buildVersion(1, "0xtx"), Slug: "song", TitleSlug: "song", OwnerID: 1, TrackID: 10}
		old.IsCurrent = false
		current := &schema.TrackRoute{Versioned: buildVersion(1, "0xtx"), Slug: "song-1", TitleSlug: "song", CollisionID: 1, OwnerID: 1, TrackID: 11}
		other := &schema.TrackRoute{Versioned: buildVersion(1, "0xtx"), Slug: "song", TitleSlug: "song", OwnerID: 2, TrackID: 12}
		commitRecords(t, store, old, current, other)

		routes, err := store.FetchTrackRoutes(ctx, []int64{1}, []string{"song"})
		require.NoError(t, err)
		require.Len(t, routes, 2)
		assert.Equal(t, "song", routes[0].Slug)
		assert.Equal(t, "song-1", routes[1].Slug)
	})

	t.Run("routes include suffixed slugs of other titles", func(t *testing.T) {
		commitRecords(t, store,
			&schema.TrackRoute{Versioned: buildVersion(1, "0xtx"), Slug: "foo", TitleSlug: "foo", OwnerID: 77, TrackID: 20},
			&schema.TrackRoute{Versioned: buildVersion(1, "0xtx"), Slug: "foo-1", TitleSlug: "foo-1", OwnerID: 77, TrackID: 21},
			&schema.TrackRoute{Versioned: buildVersion(1, "0xtx"), Slug: "foobar", TitleSlug: "foobar", OwnerID: 77, TrackID: 22},
		)

		routes, err := store.FetchTrackRoutes(ctx, []int64{77}, []string{"foo"})
		require.NoError(t, err)
		require.Len(t, routes, 2)
		assert.Equal(t, "foo", routes[0].Slug)
		assert.Equal(t, "foo-1", routes[1].Slug)
	})

	t.Run("social counts only count current non-deleted rows", func(t *testing.T) {
		commitRecords(t, store,
			buildTestFollow(1, 2, false, 2),
			buildTestFollow(3, 2, true, 2),
			&schema.Repost{Versioned: buildVersion(2, "0xtx"), UserID: 1, RepostItemID: 7, RepostType: schema.SaveTypePlaylist},
			&schema.Save{Versioned: buildVersion(2, "0xtx"), UserID: 1, SaveItemID: 7, SaveType: schema.SaveTypeAlbum},
		)

		followers, err := store.CountFollowers(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), followers)

		reposts, err := store.CountReposts(ctx, 7, schema.SaveTypePlaylist)
		require.NoError(t, err)
		assert.Equal(t, int64(1), reposts)

		saves, err := store.CountSaves(ctx, 7, schema.SaveTypePlaylist)
		require.NoError(t, err)
		assert.Equal(t, int64(0), saves)
	})
}

// =============================================================================
// Test: Challenges
// =============================================================================

func testChallenges(t *testing.T, store Store) {
	ctx := context.Background()
	stepCount := 5

	t.Run("upsert and get challenge", func(t *testing.T) {
		err := store.UpsertChallenges(ctx, []schema.Challenge{
			{ID: "r", Type: domain.ChallengeTypeAggregate, Amount: 1, StepCount: &stepCount, Active: true},
		})
		require.NoError(t, err)

		err = store.UpsertChallenges(ctx, []schema.Challenge{
			{ID: "r", Type: domain.ChallengeTypeAggregate, Amount: 2, StepCount: &stepCount, Active: false, StartingBlock: 100},
		})
		require.NoError(t, err)

		challenge, err := store.GetChallenge(ctx, "r")
		require.NoError(t, err)
		require.NotNil(t, challenge)
		assert.Equal(t, int64(2), challenge.Amount)
		assert.False(t, challenge.Active)
		assert.Equal(t, uint64(100), challenge.StartingBlock)

		missing, err := store.GetChallenge(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("save, get and count user challenges", func(t *testing.T) {
		step := 1
		rows := []schema.UserChallenge{
			{ChallengeID: "r", Specifier: "1-2", UserID: 1, IsComplete: true, Amount: 1, CreatedAt: testBlockTime},
			{ChallengeID: "r", Specifier: "1-3", UserID: 1, IsComplete: true, Amount: 1, CreatedAt: testBlockTime.Add(-10 * 24 * time.Hour)},
			{ChallengeID: "u", Specifier: "1", UserID: 1, CurrentStepCount: &step, Amount: 1, CreatedAt: testBlockTime},
		}
		require.NoError(t, store.SaveUserChallenges(ctx, rows))

		found, err := store.GetUserChallenges(ctx, "r", []string{"1-2", "1-3", "1-4"})
		require.NoError(t, err)
		assert.Len(t, found, 2)

		counts, err := store.CountCompletedUserChallenges(ctx, "r", []int64{1, 2})
		require.NoError(t, err)
		assert.Equal(t, int64(2), counts[1])
		assert.Equal(t, int64(0), counts[2])

		recent, err := store.CountUserChallengesSince(ctx, "r", testBlockTime.Add(-7*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), recent)

		// Saving again updates in place
		step = 3
		rows[2].CurrentStepCount = &step
		rows[2].IsComplete = true
		require.NoError(t, store.SaveUserChallenges(ctx, rows[2:]))
		found, err = store.GetUserChallenges(ctx, "u", []string{"1"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.True(t, found[0].IsComplete)
		assert.Equal(t, 3, *found[0].CurrentStepCount)
	})

	t.Run("deactivated users, plays and tracks", func(t *testing.T) {
		deactivated := buildTestUser(50, "gone", "0x050", 1)
		deactivated.IsDeactivated = true
		deleted := buildTestTrack(501, 51, "Deleted", 1)
		deleted.IsDelete = true
		commitRecords(t, store,
			deactivated,
			buildTestUser(51, "artist", "0x051", 1),
			buildTestTrack(500, 51, "Hit", 1),
			deleted,
		)

		ids, err := store.GetDeactivatedUserIDs(ctx, []int64{50, 51})
		require.NoError(t, err)
		assert.Equal(t, map[int64]bool{50: true}, ids)

		plays := []schema.Play{
			{PlayItemID: 500, CreatedAt: testBlockTime},
			{PlayItemID: 500, CreatedAt: testBlockTime},
			{PlayItemID: 501, CreatedAt: testBlockTime},
		}
		require.NoError(t, store.InsertPlays(ctx, plays))

		count, err := store.CountUserPlays(ctx, 51)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		tracks, err := store.CountUserTracks(ctx, 51)
		require.NoError(t, err)
		assert.Equal(t, int64(1), tracks)

		owners, err := store.GetTrackOwners(ctx, []int64{500, 501, 999})
		require.NoError(t, err)
		assert.Equal(t, map[int64]int64{500: 51}, owners)
	})

	t.Run("plays with a known signature are stored once", func(t *testing.T) {
		commitRecords(t, store, buildTestUser(52, "dj", "0x052", 1), buildTestTrack(502, 52, "Loop", 1))

		sig := "5xSig"
		play := schema.Play{PlayItemID: 502, Signature: &sig, CreatedAt: testBlockTime}
		require.NoError(t, store.InsertPlays(ctx, []schema.Play{play}))
		require.NoError(t, store.InsertPlays(ctx, []schema.Play{play}))

		count, err := store.CountUserPlays(ctx, 52)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		err := store.Transaction(ctx, func(tx ChallengeStore) error {
			if err := tx.SaveUserChallenges(ctx, []schema.UserChallenge{
				{ChallengeID: "fp", Specifier: "9", UserID: 9, IsComplete: true, CreatedAt: testBlockTime},
			}); err != nil {
				return err
			}
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		found, err := store.GetUserChallenges(ctx, "fp", []string{"9"})
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

// =============================================================================
// Test: BlockCursor
// =============================================================================

func testBlockCursor(t *testing.T, store Store) {
	ctx := context.Background()

	cursor, err := store.GetBlockCursor(ctx, "entity_manager")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cursor)

	require.NoError(t, store.SetBlockCursor(ctx, "entity_manager", 42))
	require.NoError(t, store.SetBlockCursor(ctx, "entity_manager", 43))

	cursor, err = store.GetBlockCursor(ctx, "entity_manager")
	require.NoError(t, err)
	assert.Equal(t, uint64(43), cursor)
}

// RunStoreTests runs every store test against the store returned by initDB
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(*testing.T, Store)
	}{
		{"FetchCurrent", testFetchCurrent},
		{"CommitBlock", testCommitBlock},
		{"Lookups", testLookups},
		{"Challenges", testChallenges},
		{"BlockCursor", testBlockCursor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, initDB(t))
		})
	}
}

func TestCalculateSafeBatchSize(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		fields   int
		expected int
	}{
		{"fewer records than a batch", 10, 3, 10},
		{"limited by parameters", 100000, 3, 21511},
		{"single field", 100000, 1, 64535},
		{"empty input", 0, 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, calculateSafeBatchSize(tt.total, tt.fields))
		})
	}
}

package entitymanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

func testUser(userID int64, rowID int64, name string) *schema.User {
	u := &schema.User{UserID: userID, Name: name}
	u.RowID = rowID
	u.IsCurrent = true
	return u
}

func TestResolve(t *testing.T) {
	key := domain.IDKey(domain.EntityTypeUser, 1)
	base := map[domain.EntityKey]schema.Record{key: testUser(1, 7, "base")}

	assert.Equal(t, "base", resolve(base, nil, key).(*schema.User).Name)

	overlay := map[domain.EntityKey][]schema.Record{
		key: {testUser(1, 0, "first"), testUser(1, 0, "second")},
	}
	assert.Equal(t, "second", resolve(base, overlay, key).(*schema.User).Name)
	assert.Nil(t, resolve(base, overlay, domain.IDKey(domain.EntityTypeUser, 2)))
}

func TestWorld_StageCommitRollback(t *testing.T) {
	key := domain.IDKey(domain.EntityTypeUser, 1)
	w := NewWorld(map[domain.EntityKey]schema.Record{key: testUser(1, 7, "base")}, nil, nil)

	w.stage(testUser(1, 0, "staged"))
	assert.Equal(t, "staged", w.User(1).Name)
	w.rollbackTx()
	assert.Equal(t, "base", w.User(1).Name)

	w.stage(testUser(1, 0, "first"))
	w.commitTx()
	w.stage(testUser(1, 0, "second"))
	w.commitTx()
	assert.Equal(t, "second", w.User(1).Name)

	records, invalidate := w.changes()
	require.Len(t, records, 2)
	assert.False(t, records[0].Version().IsCurrent)
	assert.True(t, records[1].Version().IsCurrent)

	require.Len(t, invalidate, 1)
	assert.Equal(t, int64(7), invalidate[0].Version().RowID)
	assert.Equal(t, "base", invalidate[0].(*schema.User).Name)
}

func TestWorld_OriginalsAreDeepCopies(t *testing.T) {
	key := domain.IDKey(domain.EntityTypeUser, 1)
	base := testUser(1, 7, "base")
	w := NewWorld(map[domain.EntityKey]schema.Record{key: base}, nil, nil)

	base.Name = "mutated"
	w.stage(testUser(1, 0, "next"))
	w.commitTx()

	_, invalidate := w.changes()
	require.Len(t, invalidate, 1)
	assert.Equal(t, "base", invalidate[0].(*schema.User).Name)
}

func TestWorld_UserLookups(t *testing.T) {
	alice := testUser(1, 1, "alice")
	alice.HandleLC = "alice"
	alice.Wallet = "0xabc"
	gone := testUser(2, 2, "gone")
	gone.HandleLC = "gone"
	gone.IsDelete = true

	w := NewWorld(map[domain.EntityKey]schema.Record{
		alice.EntityKey(): alice,
		gone.EntityKey():  gone,
	}, nil, nil)

	assert.Equal(t, int64(1), w.UserByHandle("alice").UserID)
	assert.Equal(t, int64(1), w.UserByWallet("0xABC").UserID)
	assert.Nil(t, w.UserByHandle("gone"))

	renamed := testUser(1, 0, "alice")
	renamed.HandleLC = "alicia"
	renamed.Wallet = "0xabc"
	w.stage(renamed)
	assert.Nil(t, w.UserByHandle("alice"))
	assert.Equal(t, int64(1), w.UserByHandle("alicia").UserID)
}

func TestLive(t *testing.T) {
	var missing *schema.Track
	assert.False(t, live(missing))
	assert.True(t, live(&schema.Track{}))

	deleted := &schema.Track{}
	deleted.IsDelete = true
	assert.False(t, live(deleted))
}

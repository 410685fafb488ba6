package view

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/huddle/internal/store"
)

func TestProjectOrdersByActivity(t *testing.T) {
	groups := []store.Group{
		{Pub: "a", Name: "Alpha", JoinedAt: 100},
		{Pub: "b", Name: "Beta", JoinedAt: 50},
		{Pub: "c", Name: "Gamma", JoinedAt: 500},
		{Pub: "d", Name: "Delta", JoinedAt: 500},
	}
	previews := []store.Preview{
		{GroupPub: "a", Summary: "Alice: hi", LastTimestamp: 300},
		{GroupPub: "b", Summary: "Bob: yo", LastTimestamp: 900},
	}
	markers := []store.ReadMarker{
		{GroupPub: "a", LastReadTimestamp: 300},
	}

	got := Project(groups, previews, markers)
	require.Len(t, got, 4)

	var order []string
	for _, e := range got {
		order = append(order, e.GroupID)
	}
	assert.Equal(t, []string{"b", "d", "c", "a"}, order)

	assert.True(t, got[0].Unread, "b has no marker")
	assert.Equal(t, "Bob: yo", got[0].Preview)
	assert.False(t, got[1].Unread, "d has no messages")
	assert.False(t, got[3].Unread, "a is read up to its preview")
}

func TestServiceMarkRead(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.UpsertGroup(&store.Group{Pub: "g1", Name: "One", JoinedAt: 1}))
	require.NoError(t, db.UpsertPreview(&store.Preview{GroupPub: "g1", Summary: "x", LastTimestamp: 42}))

	svc := NewService(db)
	entries, err := svc.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Unread)

	require.NoError(t, svc.MarkRead("g1"))
	entries, err = svc.List()
	require.NoError(t, err)
	assert.False(t, entries[0].Unread)

	// A group without a preview has nothing to mark.
	require.NoError(t, svc.MarkRead("unknown"))
}

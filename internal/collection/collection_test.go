package collection

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type pond struct {
	ID   string
	Name string
}

func pondKey(p pond) string { return p.ID }

func TestCollectionAddGetRemove(t *testing.T) {
	c := New(pondKey)

	c.Add(pond{ID: "1", Name: "east"})
	c.Add(pond{ID: "2", Name: "west"})

	got, ok := c.Get("1")
	require.True(t, ok)
	require.Equal(t, "east", got.Name)
	require.True(t, c.Has("2"))
	require.Equal(t, 2, c.Len())

	c.Remove("1")
	require.False(t, c.Has("1"))
	require.Equal(t, 1, c.Len())

	// Removing twice is harmless.
	c.Remove("1")
	require.Equal(t, 1, c.Len())
}

func TestCollectionPreservesInsertionOrder(t *testing.T) {
	c := New(pondKey)
	c.BulkAdd([]pond{{ID: "3"}, {ID: "1"}, {ID: "2"}})

	require.Equal(t, []string{"3", "1", "2"}, c.Keys())
}

func TestCollectionAddReplacesInPlace(t *testing.T) {
	c := New(pondKey)
	c.BulkAdd([]pond{{ID: "1", Name: "old"}, {ID: "2", Name: "other"}})

	c.Add(pond{ID: "1", Name: "new"})

	require.Equal(t, 2, c.Len())
	require.Equal(t, []string{"1", "2"}, c.Keys(), "replacement keeps the original position")
	got, _ := c.Get("1")
	require.Equal(t, "new", got.Name)
}

func TestCollectionUpdate(t *testing.T) {
	c := New(pondKey)
	c.Add(pond{ID: "1", Name: "east"})

	c.Update("1", func(p pond) pond {
		p.Name = "east pond"
		return p
	})
	got, _ := c.Get("1")
	require.Equal(t, "east pond", got.Name)

	// Updating an absent key neither panics nor inserts.
	c.Update("missing", func(p pond) pond { return p })
	require.False(t, c.Has("missing"))
}

func TestCollectionBulkRemoveAndClear(t *testing.T) {
	c := New(pondKey)
	c.BulkAdd([]pond{{ID: "1"}, {ID: "2"}, {ID: "3"}})

	c.BulkRemove([]string{"1", "3", "absent"})
	require.Equal(t, []string{"2"}, c.Keys())

	c.Clear()
	require.Zero(t, c.Len())
	require.Empty(t, c.All())
}

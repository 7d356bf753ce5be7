package collection

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestIndex() (*Collection[pond], *Index[pond]) {
	c := New(pondKey)
	x := NewIndex(c, func(p pond) []string { return []string{p.Name} })
	return c, x
}

func addIndexed(c *Collection[pond], x *Index[pond], records ...pond) {
	for _, record := range records {
		c.Add(record)
		x.Add(record)
	}
}

func TestSearchMatchesSubstringCaseInsensitive(t *testing.T) {
	c, x := newTestIndex()
	addIndexed(c, x, pond{ID: "1", Name: "Alpha"}, pond{ID: "2", Name: "Beta"})

	results := x.Search("a")
	require.Len(t, results, 2, "'a' appears in both names")

	results = x.Search("ALPHA")
	require.Len(t, results, 1)
	require.Equal(t, "1", results[0].ID)

	require.Empty(t, x.Search("gamma"))
}

func TestSearchEmptyTermReturnsEverything(t *testing.T) {
	c, x := newTestIndex()
	addIndexed(c, x, pond{ID: "1", Name: "Alpha"}, pond{ID: "2", Name: "Beta"})

	require.Len(t, x.Search(""), 2)
	require.Len(t, x.Search("   "), 2)
}

func TestSearchResultsFollowInsertionOrder(t *testing.T) {
	c, x := newTestIndex()
	addIndexed(c, x,
		pond{ID: "3", Name: "north basin"},
		pond{ID: "1", Name: "south basin"},
		pond{ID: "2", Name: "east basin"},
	)

	results := x.Search("basin")
	require.Len(t, results, 3)
	require.Equal(t, "3", results[0].ID)
	require.Equal(t, "1", results[1].ID)
	require.Equal(t, "2", results[2].ID)
}

func TestSearchMatchesIndividualWords(t *testing.T) {
	c, x := newTestIndex()
	addIndexed(c, x, pond{ID: "1", Name: "tilapia grow-out"})

	require.Len(t, x.Search("grow-out"), 1)
	require.Len(t, x.Search("tilapia"), 1)
}

func TestSearchReindexDropsStaleTokens(t *testing.T) {
	c, x := newTestIndex()
	addIndexed(c, x, pond{ID: "1", Name: "old name"})

	addIndexed(c, x, pond{ID: "1", Name: "fresh"})

	require.Empty(t, x.Search("old"), "tokens from the replaced record must not linger")
	require.Len(t, x.Search("fresh"), 1)
}

func TestSearchRemoveDropsRecord(t *testing.T) {
	c, x := newTestIndex()
	addIndexed(c, x, pond{ID: "1", Name: "alpha"}, pond{ID: "2", Name: "alpine"})

	x.Remove("1")
	c.Remove("1")

	results := x.Search("alp")
	require.Len(t, results, 1)
	require.Equal(t, "2", results[0].ID)
}

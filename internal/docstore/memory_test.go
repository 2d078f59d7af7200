package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func seedMemory(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	m := NewMemoryStore()
	rows := []map[string]any{
		{"movie_id": 1, "title": "Batman Begins", "count": 5},
		{"movie_id": 1, "title": "Batman Begins", "count": 5},
		{"movie_id": 2, "title": "Heat", "count": 9},
		{"movie_id": 3, "title": "The Dark Knight", "count": 1},
	}
	for _, row := range rows {
		_, err := m.Create(ctx, "metrics", "", row, nil)
		require.NoError(t, err)
	}
	return m
}

func movieIDs(t *testing.T, docs []Document) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		id, ok := d.Int("movie_id")
		require.True(t, ok)
		ids = append(ids, id)
	}
	return ids
}

func TestMemoryStoreListFiltersAndOrders(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	res, err := m.List(ctx, "metrics", Desc("count"))
	require.NoError(t, err)
	require.Equal(t, 4, res.Total)
	require.Equal(t, []int64{2, 1, 1, 3}, movieIDs(t, res.Documents))

	res, err = m.List(ctx, "metrics", Eq("movie_id", 1), Limit{N: 1})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	require.Len(t, res.Documents, 1)

	res, err = m.List(ctx, "metrics", Search{Field: "title", Text: "batman"})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)

	res, err = m.List(ctx, "metrics", Eq("movie_id", "1"))
	require.NoError(t, err)
	require.Zero(t, res.Total, "string value must not match a numeric attribute")
}

func TestMemoryStoreCursorAfter(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	first, err := m.List(ctx, "metrics", Desc("count"), Limit{N: 2})
	require.NoError(t, err)
	require.Len(t, first.Documents, 2)

	rest, err := m.List(ctx, "metrics", Desc("count"), Limit{N: 2}, CursorAfter{ID: first.Documents[1].ID})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3}, movieIDs(t, rest.Documents))

	_, err = m.List(ctx, "metrics", CursorAfter{ID: "missing"})
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestMemoryStoreCRUDErrors(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	doc, err := m.Create(ctx, "saved", "fixed", map[string]any{"title": "X"}, OwnerPermissions("u1"))
	require.NoError(t, err)
	require.Equal(t, "fixed", doc.ID)
	require.Equal(t, []string{`read("user:u1")`, `write("user:u1")`}, doc.Permissions)

	_, err = m.Create(ctx, "saved", "fixed", map[string]any{"title": "Y"}, nil)
	require.ErrorIs(t, err, ErrConflict)

	updated, err := m.Update(ctx, "saved", "fixed", map[string]any{"category": "Weekend"})
	require.NoError(t, err)
	require.Equal(t, "X", updated.String("title"))
	require.Equal(t, "Weekend", updated.String("category"))

	require.NoError(t, m.Delete(ctx, "saved", "fixed"))
	require.ErrorIs(t, m.Delete(ctx, "saved", "fixed"), ErrNotFound)

	_, err = m.Get(ctx, "saved", "fixed")
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	require.Equal(t, 404, remote.Status)
}

func TestMemoryStoreIncrement(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	_, err := m.Create(ctx, "metrics", "movie_7", map[string]any{"count": 1}, nil)
	require.NoError(t, err)

	doc, err := m.Increment(ctx, "metrics", "movie_7", "count", 2)
	require.NoError(t, err)
	count, ok := doc.Int("count")
	require.True(t, ok)
	require.EqualValues(t, 3, count)

	_, err = m.Increment(ctx, "metrics", "movie_8", "count", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	doc, err := m.Create(ctx, "saved", "a", map[string]any{"title": "X"}, nil)
	require.NoError(t, err)
	doc.Data["title"] = "mutated"

	got, err := m.Get(ctx, "saved", "a")
	require.NoError(t, err)
	require.Equal(t, "X", got.String("title"))
}

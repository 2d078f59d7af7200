package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/moviedeck/internal/docstore"
	"github.com/Clark-Hu/moviedeck/internal/store/storetest"
)

func seed(t *testing.T, s docstore.Store) {
	t.Helper()
	ctx := context.Background()
	rows := []map[string]any{
		{"movie_id": 1, "title": "Batman Begins", "count": 5},
		{"movie_id": 1, "title": "Batman Begins", "count": 5},
		{"movie_id": 2, "title": "Heat", "count": 9},
		{"movie_id": 3, "title": "The Dark Knight", "count": 1},
	}
	for _, row := range rows {
		if _, err := s.Create(ctx, "metrics", "", row, nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func movieIDs(t *testing.T, docs []docstore.Document) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		id, ok := d.Int("movie_id")
		require.True(t, ok)
		ids = append(ids, id)
	}
	return ids
}

func TestStoreListMatchesMemorySemantics(t *testing.T) {
	s := storetest.New(t)
	seed(t, s)
	ctx := context.Background()

	res, err := s.List(ctx, "metrics", docstore.Desc("count"))
	require.NoError(t, err)
	require.Equal(t, 4, res.Total)
	require.Equal(t, []int64{2, 1, 1, 3}, movieIDs(t, res.Documents))

	res, err = s.List(ctx, "metrics", docstore.Eq("movie_id", 1), docstore.Limit{N: 1})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	require.Len(t, res.Documents, 1)

	res, err = s.List(ctx, "metrics", docstore.Eq("movie_id", 2, 3))
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)

	res, err = s.List(ctx, "metrics", docstore.Search{Field: "title", Text: "batman"})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)

	res, err = s.List(ctx, "metrics", docstore.Search{Field: "title", Text: "100%"})
	require.NoError(t, err)
	require.Zero(t, res.Total, "wildcards in search text are literal")

	res, err = s.List(ctx, "metrics", docstore.Eq("movie_id", "1"))
	require.NoError(t, err)
	require.Zero(t, res.Total, "string value must not match a numeric attribute")

	res, err = s.List(ctx, "other")
	require.NoError(t, err)
	require.Zero(t, res.Total)
	require.NotNil(t, res.Documents)
}

func TestStoreCursorAfter(t *testing.T) {
	s := storetest.New(t)
	seed(t, s)
	ctx := context.Background()

	first, err := s.List(ctx, "metrics", docstore.Desc("count"), docstore.Limit{N: 2})
	require.NoError(t, err)
	require.Len(t, first.Documents, 2)

	rest, err := s.List(ctx, "metrics", docstore.Desc("count"), docstore.Limit{N: 2}, docstore.CursorAfter{ID: first.Documents[1].ID})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3}, movieIDs(t, rest.Documents))
	require.Equal(t, 4, rest.Total)

	all, err := docstore.ListAll(ctx, s, "metrics", 3)
	require.NoError(t, err)
	require.Len(t, all, 4)

	_, err = s.List(ctx, "metrics", docstore.CursorAfter{ID: "missing"})
	require.ErrorIs(t, err, docstore.ErrInvalidQuery)
}

func TestStoreCRUD(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "saved", "doc-1", map[string]any{"userId": "u1", "category": "Favorites"}, docstore.OwnerPermissions("u1"))
	require.NoError(t, err)
	require.Equal(t, "doc-1", created.ID)
	require.Equal(t, docstore.OwnerPermissions("u1"), created.Permissions)
	require.False(t, created.CreatedAt.IsZero())

	_, err = s.Create(ctx, "saved", "doc-1", map[string]any{}, nil)
	require.ErrorIs(t, err, docstore.ErrConflict)

	updated, err := s.Update(ctx, "saved", "doc-1", map[string]any{"category": "Watch Later"})
	require.NoError(t, err)
	require.Equal(t, "Watch Later", updated.String("category"))
	require.Equal(t, "u1", updated.String("userId"))

	got, err := s.Get(ctx, "saved", "doc-1")
	require.NoError(t, err)
	require.Equal(t, "Watch Later", got.String("category"))

	res, err := s.List(ctx, "saved", docstore.Eq(docstore.FieldID, "doc-1"))
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)

	require.NoError(t, s.Delete(ctx, "saved", "doc-1"))
	require.ErrorIs(t, s.Delete(ctx, "saved", "doc-1"), docstore.ErrNotFound)

	_, err = s.Get(ctx, "saved", "doc-1")
	require.ErrorIs(t, err, docstore.ErrNotFound)
	_, err = s.Update(ctx, "saved", "doc-1", map[string]any{"x": 1})
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestStoreIncrementIsAtomic(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "metrics", "movie_7", map[string]any{"movie_id": 7, "count": 1}, nil)
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Increment(ctx, "metrics", "movie_7", "count", 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("increment: %v", err)
	}

	doc, err := s.Get(ctx, "metrics", "movie_7")
	require.NoError(t, err)
	count, ok := doc.Int("count")
	require.True(t, ok)
	require.EqualValues(t, workers+1, count)

	_, err = s.Increment(ctx, "metrics", "missing", "count", 1)
	require.ErrorIs(t, err, docstore.ErrNotFound)

	_, err = s.Create(ctx, "metrics", "bad", map[string]any{"count": "many"}, nil)
	require.NoError(t, err)
	_, err = s.Increment(ctx, "metrics", "bad", "count", 1)
	var remote *docstore.RemoteError
	require.True(t, errors.As(err, &remote))
	require.Equal(t, 400, remote.Status)
}

func TestStoreOrdersMissingAttributeLowest(t *testing.T) {
	backends := map[string]func(t *testing.T) docstore.Store{
		"memory":   func(t *testing.T) docstore.Store { return docstore.NewMemoryStore() },
		"postgres": func(t *testing.T) docstore.Store { return storetest.New(t) },
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			rows := []map[string]any{
				{"movie_id": 1, "count": 3},
				{"movie_id": 2},
				{"movie_id": 3, "count": 1},
			}
			for _, row := range rows {
				_, err := s.Create(ctx, "metrics", "", row, nil)
				require.NoError(t, err)
			}

			res, err := s.List(ctx, "metrics", docstore.Desc("count"))
			require.NoError(t, err)
			require.Equal(t, []int64{1, 3, 2}, movieIDs(t, res.Documents))

			res, err = s.List(ctx, "metrics", docstore.Asc("count"))
			require.NoError(t, err)
			require.Equal(t, []int64{2, 3, 1}, movieIDs(t, res.Documents))
		})
	}
}

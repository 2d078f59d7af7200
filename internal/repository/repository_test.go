package repository

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/moviedeck/internal/docstore"
	"github.com/Clark-Hu/moviedeck/internal/domain"
	"github.com/Clark-Hu/moviedeck/internal/store/storetest"
)

type testEnv struct {
	ctx        context.Context
	store      docstore.Store
	repository *Repository
}

var backends = []struct {
	name string
	open func(t *testing.T) docstore.Store
}{
	{"memory", func(t *testing.T) docstore.Store { return docstore.NewMemoryStore() }},
	{"postgres", func(t *testing.T) docstore.Store { return storetest.New(t) }},
}

// forEachBackend runs fn once per document store implementation.
func forEachBackend(t *testing.T, fn func(t *testing.T, env *testEnv)) {
	t.Helper()
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			st := b.open(t)
			fn(t, newTestEnv(st, Options{}))
		})
	}
}

func newTestEnv(st docstore.Store, opts Options) *testEnv {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &testEnv{ctx: context.Background(), store: st, repository: New(st, opts)}
}

var (
	alice = &domain.User{ID: "alice"}
	bob   = &domain.User{ID: "bob"}
)

func mustSave(t *testing.T, env *testEnv, user *domain.User, movieID int, title, category string) domain.SavedMovie {
	t.Helper()
	saved, _, err := env.repository.Saved.Save(env.ctx, user, SaveParams{
		MovieID:    movieID,
		Title:      title,
		PosterPath: "/poster.jpg",
		Category:   category,
	})
	require.NoError(t, err)
	return saved
}

func TestSaveUnsaveRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		saved := mustSave(t, env, alice, 42, "Heat", "")
		require.Equal(t, domain.DefaultCategory, saved.Category)
		require.Equal(t, "https://image.tmdb.org/t/p/w500/poster.jpg", saved.PosterURL)
		require.Equal(t, "alice", saved.UserID)

		ok, err := env.repository.Saved.IsSaved(env.ctx, alice, 42)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = env.repository.Saved.IsSaved(env.ctx, bob, 42)
		require.NoError(t, err)
		require.False(t, ok, "saved state is per user")

		require.NoError(t, env.repository.Saved.Unsave(env.ctx, alice, 42))
		ok, err = env.repository.Saved.IsSaved(env.ctx, alice, 42)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestUnsaveIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		require.NoError(t, env.repository.Saved.Unsave(env.ctx, alice, 7))
		mustSave(t, env, alice, 7, "Alien", "Sci-Fi")
		require.NoError(t, env.repository.Saved.Unsave(env.ctx, alice, 7))
		require.NoError(t, env.repository.Saved.Unsave(env.ctx, alice, 7))
	})
}

func TestSaveDuplicates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		first, created, err := env.repository.Saved.Save(env.ctx, alice, SaveParams{MovieID: 1, Title: "Up", Category: "Kids"})
		require.NoError(t, err)
		require.True(t, created)

		again, created, err := env.repository.Saved.Save(env.ctx, alice, SaveParams{MovieID: 1, Title: "Up", Category: "Kids"})
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, first.ID, again.ID)

		existing, _, err := env.repository.Saved.Save(env.ctx, alice, SaveParams{MovieID: 1, Title: "Up", Category: "Favorites"})
		require.ErrorIs(t, err, ErrAlreadySaved)
		require.Equal(t, "Kids", existing.Category)

		grouped, err := env.repository.Saved.ListGrouped(env.ctx, alice)
		require.NoError(t, err)
		require.Len(t, grouped["Kids"], 1)
	})
}

func TestSaveValidation(t *testing.T) {
	env := newTestEnv(docstore.NewMemoryStore(), Options{})

	_, _, err := env.repository.Saved.Save(env.ctx, nil, SaveParams{MovieID: 1, Title: "x"})
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, _, err = env.repository.Saved.Save(env.ctx, alice, SaveParams{MovieID: 0, Title: "x"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = env.repository.Saved.Save(env.ctx, alice, SaveParams{MovieID: 3, Title: "  "})
	require.ErrorIs(t, err, ErrInvalidInput)

	require.ErrorIs(t, env.repository.Saved.Unsave(env.ctx, nil, 3), ErrUnauthenticated)
	_, err = env.repository.Saved.ListGrouped(env.ctx, nil)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestIsSavedWithoutUser(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		mustSave(t, env, alice, 5, "Jaws", "")
		ok, err := env.repository.Saved.IsSaved(env.ctx, nil, 5)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestListGroupedCompleteness(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		mustSave(t, env, alice, 1, "Heat", "Crime")
		mustSave(t, env, alice, 2, "Se7en", "Crime")
		mustSave(t, env, alice, 3, "Up", "")
		mustSave(t, env, bob, 4, "Jaws", "Crime")
		_, _, err := env.repository.Collections.Create(env.ctx, alice, "Watch Later")
		require.NoError(t, err)

		// A legacy record with no category label.
		_, err = env.store.Create(env.ctx, DefaultSavedCollection, "", map[string]any{
			"userId": "alice", "movie_id": 9, "title": "Legacy",
		}, nil)
		require.NoError(t, err)

		grouped, err := env.repository.Saved.ListGrouped(env.ctx, alice)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"Crime", "Favorites", "Watch Later", "Uncategorized"}, keys(grouped))
		require.Equal(t, []int{1, 2}, ids(grouped["Crime"]))
		require.Equal(t, []int{3}, ids(grouped["Favorites"]))
		require.Empty(t, grouped["Watch Later"])
		require.NotNil(t, grouped["Watch Later"])
		require.Equal(t, []int{9}, ids(grouped["Uncategorized"]))

		total := 0
		for _, movies := range grouped {
			total += len(movies)
		}
		require.Equal(t, 4, total, "every non-placeholder record appears exactly once")
	})
}

func TestListGroupedPagesThroughEverything(t *testing.T) {
	env := newTestEnv(docstore.NewMemoryStore(), Options{PageSize: 2})
	for i := 1; i <= 5; i++ {
		mustSave(t, env, alice, i, "Movie", "Bulk")
	}
	grouped, err := env.repository.Saved.ListGrouped(env.ctx, alice)
	require.NoError(t, err)
	require.Len(t, grouped["Bulk"], 5)
}

func TestRecordHitFirstAndRepeat(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		movie := domain.MovieSummary{ID: 100, Title: "Dune", PosterPath: "/dune.jpg"}

		first, err := env.repository.Counters.RecordHit(env.ctx, "DUNE", movie)
		require.NoError(t, err)
		require.EqualValues(t, 1, first.Count)
		require.Equal(t, "dune", first.SearchTerm)
		require.Equal(t, CounterID(100), first.ID)
		require.Equal(t, "https://image.tmdb.org/t/p/w500/dune.jpg", first.PosterURL)

		second, err := env.repository.Counters.RecordHit(env.ctx, "Dune Part Two", movie)
		require.NoError(t, err)
		require.EqualValues(t, 2, second.Count)
		require.Equal(t, "dune part two", second.SearchTerm)

		res, err := env.store.List(env.ctx, DefaultCountersCollection, docstore.Eq("movie_id", 100))
		require.NoError(t, err)
		require.Equal(t, 1, res.Total)
	})
}

// plainStore hides the Incrementer capability of the wrapped store.
type plainStore struct {
	docstore.Store
}

func TestRecordHitWithoutIncrementer(t *testing.T) {
	env := newTestEnv(plainStore{docstore.NewMemoryStore()}, Options{})
	movie := domain.MovieSummary{ID: 8, Title: "Ran"}
	for i := 0; i < 3; i++ {
		_, err := env.repository.Counters.RecordHit(env.ctx, "ran", movie)
		require.NoError(t, err)
	}
	doc, err := env.store.Get(env.ctx, DefaultCountersCollection, CounterID(8))
	require.NoError(t, err)
	count, _ := doc.Int("count")
	require.EqualValues(t, 3, count)
}

func TestRecordHitConcurrent(t *testing.T) {
	for _, st := range []docstore.Store{docstore.NewMemoryStore(), plainStore{docstore.NewMemoryStore()}} {
		env := newTestEnv(st, Options{})
		movie := domain.MovieSummary{ID: 11, Title: "Tenet"}

		const workers = 25
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := env.repository.Counters.RecordHit(env.ctx, "tenet", movie); err != nil {
					t.Errorf("record hit: %v", err)
				}
			}()
		}
		wg.Wait()

		res, err := env.store.List(env.ctx, DefaultCountersCollection, docstore.Eq("movie_id", 11))
		require.NoError(t, err)
		require.Equal(t, 1, res.Total)
		count, _ := res.Documents[0].Int("count")
		require.EqualValues(t, workers, count)
		require.Zero(t, env.repository.Counters.locks.size())
	}
}

func TestRecordHitConflictFallsBackToIncrement(t *testing.T) {
	env := newTestEnv(docstore.NewMemoryStore(), Options{})
	// Occupies the deterministic id but is invisible to the movie_id lookup.
	_, err := env.store.Create(env.ctx, DefaultCountersCollection, CounterID(5), map[string]any{
		"movie_id": "5", "count": 3,
	}, nil)
	require.NoError(t, err)

	counter, err := env.repository.Counters.RecordHit(env.ctx, "x", domain.MovieSummary{ID: 5, Title: "Five"})
	require.NoError(t, err)
	require.EqualValues(t, 4, counter.Count)
}

func TestListTrendingDedupesAndOrders(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		rows := []map[string]any{
			{"movie_id": 1, "title": "A", "count": 5},
			{"movie_id": 1, "title": "A", "count": 5},
			{"movie_id": 2, "title": "B", "count": 9},
			{"movie_id": 3, "title": "C", "count": 1},
			{"movie_id": "oops", "title": "bad", "count": 50},
			{"movie_id": -4, "title": "neg", "count": 40},
		}
		for _, row := range rows {
			_, err := env.store.Create(env.ctx, DefaultCountersCollection, "", row, nil)
			require.NoError(t, err)
		}

		trending, err := env.repository.Counters.ListTrending(env.ctx, 0)
		require.NoError(t, err)
		got := make([]int, 0, len(trending))
		for _, c := range trending {
			got = append(got, c.MovieID)
		}
		require.Equal(t, []int{2, 1, 3}, got)

		top, err := env.repository.Counters.ListTrending(env.ctx, 1)
		require.NoError(t, err)
		require.Len(t, top, 1)
		require.Equal(t, 2, top[0].MovieID)
	})
}

func TestListTrendingByCreated(t *testing.T) {
	st := docstore.NewMemoryStore()
	env := newTestEnv(st, Options{TrendingOrder: OrderByCreated})
	for _, id := range []int{1, 2, 3} {
		_, err := env.repository.Counters.RecordHit(env.ctx, "q", domain.MovieSummary{ID: id, Title: "T"})
		require.NoError(t, err)
	}
	trending, err := env.repository.Counters.ListTrending(env.ctx, 10)
	require.NoError(t, err)
	require.Len(t, trending, 3)
}

func TestCollectionCreateIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		first, created, err := env.repository.Collections.Create(env.ctx, alice, "Noir")
		require.NoError(t, err)
		require.True(t, created)
		require.True(t, first.IsPlaceholder())
		require.Equal(t, PlaceholderID("alice", "Noir"), first.ID)

		again, created, err := env.repository.Collections.Create(env.ctx, alice, "Noir")
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, first.ID, again.ID)

		_, _, err = env.repository.Collections.Create(env.ctx, alice, " ")
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestCollectionDeleteRemovesAllMembers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		_, _, err := env.repository.Collections.Create(env.ctx, alice, "Noir")
		require.NoError(t, err)
		mustSave(t, env, alice, 1, "Double Indemnity", "Noir")
		mustSave(t, env, alice, 2, "Laura", "Noir")
		mustSave(t, env, alice, 3, "Heat", "Crime")
		mustSave(t, env, bob, 4, "Gilda", "Noir")

		removed, err := env.repository.Collections.Delete(env.ctx, alice, "Noir")
		require.NoError(t, err)
		require.Equal(t, 3, removed)

		grouped, err := env.repository.Saved.ListGrouped(env.ctx, alice)
		require.NoError(t, err)
		_, ok := grouped["Noir"]
		require.False(t, ok)
		require.Len(t, grouped["Crime"], 1)

		bobs, err := env.repository.Saved.ListGrouped(env.ctx, bob)
		require.NoError(t, err)
		require.Len(t, bobs["Noir"], 1, "other users are untouched")
	})
}

func TestCollectionRename(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		_, _, err := env.repository.Collections.Create(env.ctx, alice, "Old")
		require.NoError(t, err)
		mustSave(t, env, alice, 1, "One", "Old")
		mustSave(t, env, alice, 2, "Two", "Old")

		moved, err := env.repository.Collections.Rename(env.ctx, alice, "Old", "New")
		require.NoError(t, err)
		require.Equal(t, 3, moved)

		grouped, err := env.repository.Saved.ListGrouped(env.ctx, alice)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"New"}, keys(grouped))
		require.ElementsMatch(t, []int{1, 2}, ids(grouped["New"]))

		// The old title can be reused after the rename.
		_, created, err := env.repository.Collections.Create(env.ctx, alice, "Old")
		require.NoError(t, err)
		require.True(t, created)

		n, err := env.repository.Collections.Rename(env.ctx, alice, "New", "New")
		require.NoError(t, err)
		require.Zero(t, n)
	})
}

// failingStore fails Delete and Update after a number of successful calls.
type failingStore struct {
	docstore.Store
	allowed int
	calls   int
}

var errInjected = errors.New("injected failure")

func (f *failingStore) Delete(ctx context.Context, collection, id string) error {
	f.calls++
	if f.calls > f.allowed {
		return errInjected
	}
	return f.Store.Delete(ctx, collection, id)
}

func (f *failingStore) Update(ctx context.Context, collection, id string, data map[string]any) (docstore.Document, error) {
	f.calls++
	if f.calls > f.allowed {
		return docstore.Document{}, errInjected
	}
	return f.Store.Update(ctx, collection, id, data)
}

func TestCollectionBatchErrors(t *testing.T) {
	mem := docstore.NewMemoryStore()
	seedEnv := newTestEnv(mem, Options{})
	for i := 1; i <= 3; i++ {
		mustSave(t, seedEnv, alice, i, "M", "Batch")
	}

	fs := &failingStore{Store: mem, allowed: 1}
	env := newTestEnv(fs, Options{})

	done, err := env.repository.Collections.Delete(env.ctx, alice, "Batch")
	var batch *BatchError
	require.ErrorAs(t, err, &batch)
	require.ErrorIs(t, err, errInjected)
	require.Equal(t, 1, done)
	require.Equal(t, "delete", batch.Op)
	require.Equal(t, 1, batch.Done)
	require.Equal(t, 3, batch.Total)

	fs.calls, fs.allowed = 0, 0
	done, err = env.repository.Collections.Rename(env.ctx, alice, "Batch", "Other")
	require.ErrorAs(t, err, &batch)
	require.Zero(t, done)
	require.Equal(t, "rename", batch.Op)
	require.Equal(t, 2, batch.Total)
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	require.Equal(t, 2, k.size())
	unlockA()
	unlockB()
	require.Zero(t, k.size())
}

func keys(m map[string][]domain.SavedMovie) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func ids(movies []domain.SavedMovie) []int {
	out := make([]int, 0, len(movies))
	for _, m := range movies {
		out = append(out, m.MovieID)
	}
	return out
}

package catalog

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/moviedeck/internal/domain"
	"github.com/Clark-Hu/moviedeck/internal/tmdb"
)

type fakeMovies struct {
	search     []domain.MovieSummary
	nowPlaying []domain.MovieSummary
	details    map[int]domain.MovieDetail
	err        error

	mu      sync.Mutex
	queries []string
}

func (f *fakeMovies) Search(ctx context.Context, query string) ([]domain.MovieSummary, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	return f.search, f.err
}

func (f *fakeMovies) NowPlaying(ctx context.Context) ([]domain.MovieSummary, error) {
	return f.nowPlaying, f.err
}

func (f *fakeMovies) Details(ctx context.Context, id int) (domain.MovieDetail, error) {
	if f.err != nil {
		return domain.MovieDetail{}, f.err
	}
	d, ok := f.details[id]
	if !ok {
		return domain.MovieDetail{}, tmdb.ErrNotFound
	}
	return d, nil
}

type hit struct {
	query   string
	movieID int
}

type fakeCounters struct {
	mu       sync.Mutex
	hits     []hit
	trending []domain.SearchCounter
	err      error
}

func (f *fakeCounters) RecordHit(ctx context.Context, query string, movie domain.MovieSummary) (domain.SearchCounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits = append(f.hits, hit{query: query, movieID: movie.ID})
	return domain.SearchCounter{MovieID: movie.ID, Count: 1}, f.err
}

func (f *fakeCounters) ListTrending(ctx context.Context, limit int) ([]domain.SearchCounter, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.trending) {
		return f.trending[:limit], nil
	}
	return f.trending, nil
}

func newService(movies *fakeMovies, counters *fakeCounters) *Service {
	return New(movies, counters, log.New(io.Discard))
}

func TestSearchEmptyQueryUsesNowPlaying(t *testing.T) {
	movies := &fakeMovies{nowPlaying: []domain.MovieSummary{{ID: 1, Title: "Now"}}}
	counters := &fakeCounters{}

	got := newService(movies, counters).Search(context.Background(), "   ")
	require.Len(t, got, 1)
	require.Empty(t, movies.queries)
	require.Empty(t, counters.hits)
}

func TestSearchRecordsFirstResult(t *testing.T) {
	movies := &fakeMovies{search: []domain.MovieSummary{{ID: 27205, Title: "Inception"}, {ID: 2}}}
	counters := &fakeCounters{}

	got := newService(movies, counters).Search(context.Background(), " Inception ")
	require.Len(t, got, 2)
	require.Equal(t, []string{"Inception"}, movies.queries)
	require.Equal(t, []hit{{query: "Inception", movieID: 27205}}, counters.hits)
}

func TestSearchNoResultsRecordsNothing(t *testing.T) {
	counters := &fakeCounters{}
	got := newService(&fakeMovies{}, counters).Search(context.Background(), "zzz")
	require.Empty(t, got)
	require.Empty(t, counters.hits)
}

func TestSearchDegrades(t *testing.T) {
	movies := &fakeMovies{err: errors.New("upstream down")}
	got := newService(movies, &fakeCounters{}).Search(context.Background(), "x")
	require.NotNil(t, got)
	require.Empty(t, got)

	got = newService(movies, &fakeCounters{}).Search(context.Background(), "")
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestSearchIgnoresCounterFailure(t *testing.T) {
	movies := &fakeMovies{search: []domain.MovieSummary{{ID: 5}}}
	counters := &fakeCounters{err: errors.New("store down")}
	require.Len(t, newService(movies, counters).Search(context.Background(), "q"), 1)
}

func TestDetailsRecordsView(t *testing.T) {
	movies := &fakeMovies{details: map[int]domain.MovieDetail{
		155: {MovieSummary: domain.MovieSummary{ID: 155, Title: "The Dark Knight"}},
	}}
	counters := &fakeCounters{}
	svc := newService(movies, counters)

	d, err := svc.Details(context.Background(), 155)
	require.NoError(t, err)
	require.Equal(t, "The Dark Knight", d.Title)
	require.Equal(t, []hit{{query: "The Dark Knight", movieID: 155}}, counters.hits)

	_, err = svc.Details(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
	require.Len(t, counters.hits, 1)
}

func TestTrendingHydrateKeepsOrderAndDropsFailures(t *testing.T) {
	movies := &fakeMovies{details: map[int]domain.MovieDetail{
		1: {MovieSummary: domain.MovieSummary{ID: 1, Title: "One"}},
		3: {MovieSummary: domain.MovieSummary{ID: 3, Title: "Three"}},
		4: {MovieSummary: domain.MovieSummary{ID: 4, Title: "Four"}},
	}}
	counters := &fakeCounters{trending: []domain.SearchCounter{
		{MovieID: 4}, {MovieID: 2}, {MovieID: 1}, {MovieID: 3},
	}}
	svc := newService(movies, counters)

	got, err := svc.Trending(context.Background(), 10, true)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 4, got[0].MovieID)
	require.Equal(t, "Four", got[0].Details.Title)
	require.Equal(t, 1, got[1].MovieID)
	require.Equal(t, 3, got[2].MovieID)

	plain, err := svc.Trending(context.Background(), 2, false)
	require.NoError(t, err)
	require.Len(t, plain, 2)
	require.Nil(t, plain[0].Details)
}

func TestTrendingPropagatesCounterError(t *testing.T) {
	svc := newService(&fakeMovies{}, &fakeCounters{err: errors.New("boom")})
	_, err := svc.Trending(context.Background(), 5, false)
	require.Error(t, err)
}

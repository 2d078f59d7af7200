// Package catalog combines movie metadata with the hit counters: searches
// and detail views are counted, and trending entries can be re-hydrated.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/sourcegraph/conc/iter"

	"github.com/Clark-Hu/moviedeck/internal/domain"
	"github.com/Clark-Hu/moviedeck/internal/tmdb"
)

// ErrNotFound is returned by Details for unknown movie ids.
var ErrNotFound = errors.New("catalog: movie not found")

const hydrateWorkers = 4

// Counters is the slice of the counters repository the catalog needs.
type Counters interface {
	RecordHit(ctx context.Context, query string, movie domain.MovieSummary) (domain.SearchCounter, error)
	ListTrending(ctx context.Context, limit int) ([]domain.SearchCounter, error)
}

// TrendingMovie is a trending counter, optionally with fresh catalog details.
type TrendingMovie struct {
	domain.SearchCounter
	Details *domain.MovieDetail `json:"details,omitempty"`
}

// Service answers the catalog endpoints.
type Service struct {
	movies   tmdb.Client
	counters Counters
	logger   *log.Logger
}

// New constructs a Service.
func New(movies tmdb.Client, counters Counters, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{movies: movies, counters: counters, logger: logger.WithPrefix("catalog")}
}

// Search returns now-playing movies for an empty query and search results
// otherwise. The first result of a successful search is counted. Metadata
// failures degrade to an empty list.
func (s *Service) Search(ctx context.Context, query string) []domain.MovieSummary {
	query = strings.TrimSpace(query)
	if query == "" {
		movies, err := s.movies.NowPlaying(ctx)
		if err != nil {
			s.logger.Warn("now playing failed", "err", err)
			return []domain.MovieSummary{}
		}
		return movies
	}

	movies, err := s.movies.Search(ctx, query)
	if err != nil {
		s.logger.Warn("search failed", "query", query, "err", err)
		return []domain.MovieSummary{}
	}
	if len(movies) > 0 {
		if _, err := s.counters.RecordHit(ctx, query, movies[0]); err != nil {
			s.logger.Warn("record search hit", "query", query, "movie_id", movies[0].ID, "err", err)
		}
	}
	return movies
}

// Details returns the catalog entry for id and counts the view.
func (s *Service) Details(ctx context.Context, id int) (domain.MovieDetail, error) {
	detail, err := s.movies.Details(ctx, id)
	if err != nil {
		if errors.Is(err, tmdb.ErrNotFound) {
			return domain.MovieDetail{}, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return domain.MovieDetail{}, fmt.Errorf("fetch movie %d: %w", id, err)
	}
	if _, err := s.counters.RecordHit(ctx, detail.Title, detail.MovieSummary); err != nil {
		s.logger.Warn("record view hit", "movie_id", id, "err", err)
	}
	return detail, nil
}

// Trending returns at most limit trending movies. With hydrate set every
// entry is looked up again; entries whose lookup fails are dropped and the
// order of the rest is kept.
func (s *Service) Trending(ctx context.Context, limit int, hydrate bool) ([]TrendingMovie, error) {
	counters, err := s.counters.ListTrending(ctx, limit)
	if err != nil {
		return nil, err
	}
	if !hydrate {
		out := make([]TrendingMovie, len(counters))
		for i, c := range counters {
			out[i] = TrendingMovie{SearchCounter: c}
		}
		return out, nil
	}

	mapper := iter.Mapper[domain.SearchCounter, *TrendingMovie]{MaxGoroutines: hydrateWorkers}
	hydrated := mapper.Map(counters, func(c *domain.SearchCounter) *TrendingMovie {
		detail, err := s.movies.Details(ctx, c.MovieID)
		if err != nil {
			s.logger.Debug("drop trending entry", "movie_id", c.MovieID, "err", err)
			return nil
		}
		return &TrendingMovie{SearchCounter: *c, Details: &detail}
	})

	out := make([]TrendingMovie, 0, len(hydrated))
	for _, m := range hydrated {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

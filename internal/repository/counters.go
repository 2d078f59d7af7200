package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Clark-Hu/moviedeck/internal/docstore"
	"github.com/Clark-Hu/moviedeck/internal/domain"
)

const (
	fieldSearchTerm = "searchTerm"
	fieldCount      = "count"
)

// CountersRepository keeps one hit counter per movie and derives the trending list.
type CountersRepository struct {
	store      docstore.Store
	collection string
	scan       int
	order      TrendingOrder
	imageBase  string
	locks      *keyedMutex
	logger     *log.Logger
}

// CounterID is the document id used for the counter of movieID.
func CounterID(movieID int) string {
	return "movie_" + strconv.Itoa(movieID)
}

// RecordHit bumps the counter of movie, creating it with count 1 on the first
// hit. The stored search term is replaced by the lowercased query.
func (r *CountersRepository) RecordHit(ctx context.Context, query string, movie domain.MovieSummary) (domain.SearchCounter, error) {
	if movie.ID <= 0 {
		return domain.SearchCounter{}, fmt.Errorf("%w: movie id must be positive", ErrInvalidInput)
	}
	term := strings.ToLower(strings.TrimSpace(query))

	unlock := r.locks.Lock(strconv.Itoa(movie.ID))
	defer unlock()

	res, err := r.store.List(ctx, r.collection, docstore.Eq(fieldMovieID, movie.ID), docstore.Limit{N: 1})
	if err != nil {
		return domain.SearchCounter{}, fmt.Errorf("find counter %d: %w", movie.ID, err)
	}
	if len(res.Documents) > 0 {
		return r.increment(ctx, res.Documents[0], term)
	}

	poster := movie.PosterURL
	if poster == "" {
		poster = domain.PosterURL(r.imageBase, movie.PosterPath)
	}
	doc, err := r.store.Create(ctx, r.collection, CounterID(movie.ID), map[string]any{
		fieldMovieID:    movie.ID,
		fieldTitle:      movie.Title,
		fieldPosterURL:  poster,
		fieldSearchTerm: term,
		fieldCount:      1,
	}, nil)
	if err == nil {
		counter, _ := counterFromDocument(doc)
		return counter, nil
	}
	if !errors.Is(err, docstore.ErrConflict) {
		return domain.SearchCounter{}, fmt.Errorf("create counter %d: %w", movie.ID, err)
	}

	// Another process created the counter between the lookup and the create.
	r.logger.Debug("counter created concurrently", "movie_id", movie.ID)
	existing, err := r.store.Get(ctx, r.collection, CounterID(movie.ID))
	if err != nil {
		return domain.SearchCounter{}, fmt.Errorf("reload counter %d: %w", movie.ID, err)
	}
	return r.increment(ctx, existing, term)
}

func (r *CountersRepository) increment(ctx context.Context, doc docstore.Document, term string) (domain.SearchCounter, error) {
	if inc, ok := r.store.(docstore.Incrementer); ok {
		updated, err := inc.Increment(ctx, r.collection, doc.ID, fieldCount, 1)
		switch {
		case err == nil:
			if term != updated.String(fieldSearchTerm) {
				withTerm, err := r.store.Update(ctx, r.collection, doc.ID, map[string]any{fieldSearchTerm: term})
				if err != nil {
					r.logger.Warn("update search term", "doc", doc.ID, "err", err)
				} else {
					updated = withTerm
				}
			}
			counter, _ := counterFromDocument(updated)
			return counter, nil
		case !errors.Is(err, errors.ErrUnsupported):
			return domain.SearchCounter{}, fmt.Errorf("increment counter %s: %w", doc.ID, err)
		}
	}

	count, _ := doc.Int(fieldCount)
	updated, err := r.store.Update(ctx, r.collection, doc.ID, map[string]any{
		fieldCount:      count + 1,
		fieldSearchTerm: term,
	})
	if err != nil {
		return domain.SearchCounter{}, fmt.Errorf("update counter %s: %w", doc.ID, err)
	}
	counter, _ := counterFromDocument(updated)
	return counter, nil
}

// ListTrending returns at most limit counters, one per movie, in scan order.
// Counters without a usable movie id are skipped.
func (r *CountersRepository) ListTrending(ctx context.Context, limit int) ([]domain.SearchCounter, error) {
	if limit <= 0 {
		limit = DefaultTrendingLimit
	}
	scan := r.scan
	if scan < limit {
		scan = limit
	}
	order := docstore.Desc(fieldCount)
	if r.order == OrderByCreated {
		order = docstore.Desc(docstore.FieldCreatedAt)
	}

	res, err := r.store.List(ctx, r.collection, order, docstore.Limit{N: scan})
	if err != nil {
		return nil, fmt.Errorf("list trending: %w", err)
	}
	return dedupeCounters(res.Documents, limit), nil
}

func dedupeCounters(docs []docstore.Document, limit int) []domain.SearchCounter {
	seen := make(map[int]struct{}, len(docs))
	out := make([]domain.SearchCounter, 0, min(limit, len(docs)))
	for _, doc := range docs {
		counter, ok := counterFromDocument(doc)
		if !ok {
			continue
		}
		if _, dup := seen[counter.MovieID]; dup {
			continue
		}
		seen[counter.MovieID] = struct{}{}
		out = append(out, counter)
		if len(out) == limit {
			break
		}
	}
	return out
}

// counterFromDocument reports ok=false when the document has no positive movie id.
func counterFromDocument(doc docstore.Document) (domain.SearchCounter, bool) {
	movieID, ok := doc.Int(fieldMovieID)
	count, _ := doc.Int(fieldCount)
	return domain.SearchCounter{
		ID:         doc.ID,
		MovieID:    int(movieID),
		Title:      doc.String(fieldTitle),
		PosterURL:  doc.String(fieldPosterURL),
		SearchTerm: doc.String(fieldSearchTerm),
		Count:      count,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}, ok && movieID > 0
}

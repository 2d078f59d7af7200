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

// Attribute names of saved-movie documents.
const (
	fieldUserID    = "userId"
	fieldMovieID   = "movie_id"
	fieldTitle     = "title"
	fieldPosterURL = "poster_url"
	fieldCategory  = "category"
)

// SavedMoviesRepository manages the (user, movie, category) records.
type SavedMoviesRepository struct {
	store      docstore.Store
	collection string
	pageSize   int
	imageBase  string
	locks      *keyedMutex
	logger     *log.Logger
}

// SaveParams describes a movie to save.
type SaveParams struct {
	MovieID int
	Title   string
	// PosterPath may be a relative catalog path or an absolute URL.
	PosterPath string
	Category   string
}

// Save records movie p for user. A movie already saved in the same category is
// returned unchanged with created=false; one saved under a different category
// yields ErrAlreadySaved.
func (r *SavedMoviesRepository) Save(ctx context.Context, user *domain.User, p SaveParams) (domain.SavedMovie, bool, error) {
	if user == nil || user.ID == "" {
		return domain.SavedMovie{}, false, ErrUnauthenticated
	}
	title := strings.TrimSpace(p.Title)
	if p.MovieID <= 0 || title == "" {
		return domain.SavedMovie{}, false, fmt.Errorf("%w: movie id and title are required", ErrInvalidInput)
	}
	category := strings.TrimSpace(p.Category)
	if category == "" {
		category = domain.DefaultCategory
	}

	unlock := r.locks.Lock(user.ID + "/" + strconv.Itoa(p.MovieID))
	defer unlock()

	existing, found, err := r.find(ctx, user.ID, p.MovieID)
	if err != nil {
		return domain.SavedMovie{}, false, fmt.Errorf("check saved movie %d: %w", p.MovieID, err)
	}
	if found {
		if existing.Category == category {
			return existing, false, nil
		}
		return existing, false, fmt.Errorf("%w: movie %d is in %q", ErrAlreadySaved, p.MovieID, existing.Category)
	}

	doc, err := r.store.Create(ctx, r.collection, "", map[string]any{
		fieldUserID:    user.ID,
		fieldMovieID:   p.MovieID,
		fieldTitle:     title,
		fieldPosterURL: domain.PosterURL(r.imageBase, p.PosterPath),
		fieldCategory:  category,
	}, docstore.OwnerPermissions(user.ID))
	if err != nil {
		return domain.SavedMovie{}, false, fmt.Errorf("save movie %d: %w", p.MovieID, err)
	}
	r.logger.Debug("movie saved", "user", user.ID, "movie_id", p.MovieID, "category", category)
	return savedFromDocument(doc), true, nil
}

// Unsave removes every record of movieID for user. Nothing to remove is not an error.
func (r *SavedMoviesRepository) Unsave(ctx context.Context, user *domain.User, movieID int) error {
	if user == nil || user.ID == "" {
		return ErrUnauthenticated
	}

	unlock := r.locks.Lock(user.ID + "/" + strconv.Itoa(movieID))
	defer unlock()

	docs, err := docstore.ListAll(ctx, r.store, r.collection, r.pageSize,
		docstore.Eq(fieldUserID, user.ID), docstore.Eq(fieldMovieID, movieID))
	if err != nil {
		return fmt.Errorf("find saved movie %d: %w", movieID, err)
	}
	for _, doc := range docs {
		if err := r.store.Delete(ctx, r.collection, doc.ID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("unsave movie %d: %w", movieID, err)
		}
	}
	return nil
}

// IsSaved reports whether user saved movieID under any category. Without a
// user the answer is always false.
func (r *SavedMoviesRepository) IsSaved(ctx context.Context, user *domain.User, movieID int) (bool, error) {
	if user == nil || user.ID == "" || movieID <= 0 {
		return false, nil
	}
	_, found, err := r.find(ctx, user.ID, movieID)
	if err != nil {
		return false, fmt.Errorf("check saved movie %d: %w", movieID, err)
	}
	return found, nil
}

// ListGrouped returns every saved movie of user keyed by category. Categories
// that only hold a placeholder map to an empty list.
func (r *SavedMoviesRepository) ListGrouped(ctx context.Context, user *domain.User) (map[string][]domain.SavedMovie, error) {
	if user == nil || user.ID == "" {
		return nil, ErrUnauthenticated
	}
	docs, err := docstore.ListAll(ctx, r.store, r.collection, r.pageSize, docstore.Eq(fieldUserID, user.ID))
	if err != nil {
		return nil, fmt.Errorf("list saved movies: %w", err)
	}
	return groupByCategory(docs), nil
}

func (r *SavedMoviesRepository) find(ctx context.Context, userID string, movieID int) (domain.SavedMovie, bool, error) {
	res, err := r.store.List(ctx, r.collection,
		docstore.Eq(fieldUserID, userID),
		docstore.Eq(fieldMovieID, movieID),
		docstore.Limit{N: 1})
	if err != nil {
		return domain.SavedMovie{}, false, err
	}
	if res.Total == 0 || len(res.Documents) == 0 {
		return domain.SavedMovie{}, false, nil
	}
	return savedFromDocument(res.Documents[0]), true, nil
}

func groupByCategory(docs []docstore.Document) map[string][]domain.SavedMovie {
	grouped := make(map[string][]domain.SavedMovie)
	for _, doc := range docs {
		rec := savedFromDocument(doc)
		category := rec.Category
		if category == "" {
			category = domain.UncategorizedCategory
		}
		if _, ok := grouped[category]; !ok {
			grouped[category] = []domain.SavedMovie{}
		}
		if rec.IsPlaceholder() {
			continue
		}
		grouped[category] = append(grouped[category], rec)
	}
	return grouped
}

func savedFromDocument(doc docstore.Document) domain.SavedMovie {
	movieID, _ := doc.Int(fieldMovieID)
	return domain.SavedMovie{
		ID:        doc.ID,
		UserID:    doc.String(fieldUserID),
		MovieID:   int(movieID),
		Title:     doc.String(fieldTitle),
		PosterURL: doc.String(fieldPosterURL),
		Category:  strings.TrimSpace(doc.String(fieldCategory)),
		CreatedAt: doc.CreatedAt,
	}
}

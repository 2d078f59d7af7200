package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/Clark-Hu/moviedeck/internal/docstore"
	"github.com/Clark-Hu/moviedeck/internal/domain"
)

// CollectionsRepository manages named categories. A category exists as long as
// at least one saved record, possibly a placeholder, carries its label.
type CollectionsRepository struct {
	store      docstore.Store
	collection string
	pageSize   int
	logger     *log.Logger
}

// BatchError reports a multi-document operation that stopped part way.
type BatchError struct {
	Op       string
	Category string
	Done     int
	Total    int
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s collection %q: stopped after %d of %d records: %v", e.Op, e.Category, e.Done, e.Total, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// PlaceholderID is the deterministic document id of the placeholder for (userID, title).
func PlaceholderID(userID, title string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("moviedeck:collection:"+userID+"/"+title)).String()
}

// Create makes title visible as an empty category. Creating an existing
// collection returns its placeholder with created=false.
func (r *CollectionsRepository) Create(ctx context.Context, user *domain.User, title string) (domain.SavedMovie, bool, error) {
	if user == nil || user.ID == "" {
		return domain.SavedMovie{}, false, ErrUnauthenticated
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.SavedMovie{}, false, fmt.Errorf("%w: collection title is required", ErrInvalidInput)
	}

	id := PlaceholderID(user.ID, title)
	doc, err := r.store.Create(ctx, r.collection, id, map[string]any{
		fieldUserID:    user.ID,
		fieldMovieID:   domain.PlaceholderMovieID,
		fieldTitle:     domain.PlaceholderTitle,
		fieldPosterURL: domain.PlaceholderPosterURL,
		fieldCategory:  title,
	}, docstore.OwnerPermissions(user.ID))
	if err == nil {
		return savedFromDocument(doc), true, nil
	}
	if !errors.Is(err, docstore.ErrConflict) {
		return domain.SavedMovie{}, false, fmt.Errorf("create collection %q: %w", title, err)
	}

	existing, err := r.store.Get(ctx, r.collection, id)
	if err != nil {
		return domain.SavedMovie{}, false, fmt.Errorf("load collection %q: %w", title, err)
	}
	return savedFromDocument(existing), false, nil
}

// Delete removes every record of user labelled title and returns how many
// were removed. A failure part way returns a *BatchError.
func (r *CollectionsRepository) Delete(ctx context.Context, user *domain.User, title string) (int, error) {
	if user == nil || user.ID == "" {
		return 0, ErrUnauthenticated
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, fmt.Errorf("%w: collection title is required", ErrInvalidInput)
	}

	docs, err := r.members(ctx, user.ID, title)
	if err != nil {
		return 0, err
	}
	for i, doc := range docs {
		if err := r.store.Delete(ctx, r.collection, doc.ID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return i, &BatchError{Op: "delete", Category: title, Done: i, Total: len(docs), Err: err}
		}
	}
	r.logger.Debug("collection deleted", "user", user.ID, "category", title, "records", len(docs))
	return len(docs), nil
}

// Rename relabels every record of user from oldTitle to newTitle and returns
// how many were moved. A failure part way returns a *BatchError.
func (r *CollectionsRepository) Rename(ctx context.Context, user *domain.User, oldTitle, newTitle string) (int, error) {
	if user == nil || user.ID == "" {
		return 0, ErrUnauthenticated
	}
	oldTitle, newTitle = strings.TrimSpace(oldTitle), strings.TrimSpace(newTitle)
	if oldTitle == "" || newTitle == "" {
		return 0, fmt.Errorf("%w: collection titles are required", ErrInvalidInput)
	}
	if oldTitle == newTitle {
		return 0, nil
	}

	docs, err := r.members(ctx, user.ID, oldTitle)
	if err != nil {
		return 0, err
	}
	for i, doc := range docs {
		if err := r.move(ctx, user, doc, newTitle); err != nil {
			return i, &BatchError{Op: "rename", Category: oldTitle, Done: i, Total: len(docs), Err: err}
		}
	}
	r.logger.Debug("collection renamed", "user", user.ID, "from", oldTitle, "to", newTitle, "records", len(docs))
	return len(docs), nil
}

// move relabels one record. Placeholder ids are derived from the title, so a
// placeholder is recreated under the new title instead of updated.
func (r *CollectionsRepository) move(ctx context.Context, user *domain.User, doc docstore.Document, newTitle string) error {
	if savedFromDocument(doc).IsPlaceholder() {
		if _, _, err := r.Create(ctx, user, newTitle); err != nil {
			return err
		}
		if err := r.store.Delete(ctx, r.collection, doc.ID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		return nil
	}
	_, err := r.store.Update(ctx, r.collection, doc.ID, map[string]any{fieldCategory: newTitle})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	return err
}

func (r *CollectionsRepository) members(ctx context.Context, userID, title string) ([]docstore.Document, error) {
	docs, err := docstore.ListAll(ctx, r.store, r.collection, r.pageSize,
		docstore.Eq(fieldUserID, userID), docstore.Eq(fieldCategory, title))
	if err != nil {
		return nil, fmt.Errorf("list collection %q: %w", title, err)
	}
	return docs, nil
}

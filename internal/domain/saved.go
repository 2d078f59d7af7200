package domain

import "time"

const (
	// DefaultCategory is applied when a movie is saved without a category.
	DefaultCategory = "Favorites"
	// UncategorizedCategory groups records that carry no category label.
	UncategorizedCategory = "Uncategorized"

	// PlaceholderMovieID marks a record that only exists to keep a category visible.
	PlaceholderMovieID   = 0
	PlaceholderTitle     = "(placeholder)"
	PlaceholderPosterURL = "https://placehold.co/600x400?text=Collection"
)

// SavedMovie is one saved (user, movie, category) row.
type SavedMovie struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	MovieID   int       `json:"movieId"`
	Title     string    `json:"title"`
	PosterURL string    `json:"posterUrl"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsPlaceholder reports whether the record is a category placeholder.
func (s SavedMovie) IsPlaceholder() bool {
	return s.MovieID == PlaceholderMovieID && s.Title == PlaceholderTitle
}

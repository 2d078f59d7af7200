package domain

import "time"

// SearchCounter tracks how often a movie was searched for or viewed.
type SearchCounter struct {
	ID         string    `json:"id"`
	MovieID    int       `json:"movieId"`
	Title      string    `json:"title"`
	PosterURL  string    `json:"posterUrl"`
	SearchTerm string    `json:"searchTerm"`
	Count      int64     `json:"count"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

package domain

import "strings"

// MovieSummary is the subset of catalog metadata shown in lists and search results.
type MovieSummary struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview,omitempty"`
	PosterPath  string  `json:"posterPath,omitempty"`
	PosterURL   string  `json:"posterUrl,omitempty"`
	ReleaseDate string  `json:"releaseDate,omitempty"`
	VoteAverage float64 `json:"voteAverage"`
}

// Genre is a catalog genre label.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// MovieDetail carries the full catalog entry for a single movie.
type MovieDetail struct {
	MovieSummary
	Tagline     string  `json:"tagline,omitempty"`
	Runtime     int     `json:"runtime,omitempty"`
	Status      string  `json:"status,omitempty"`
	Budget      int64   `json:"budget,omitempty"`
	Revenue     int64   `json:"revenue,omitempty"`
	Genres      []Genre `json:"genres,omitempty"`
	VoteCount   int     `json:"voteCount,omitempty"`
	ImdbID      string  `json:"imdbId,omitempty"`
	HomepageURL string  `json:"homepage,omitempty"`
}

// PosterURL qualifies a relative poster path with base. Absolute URLs pass through.
func PosterURL(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

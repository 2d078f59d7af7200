package tmdb

import (
	"strings"
	"testing"
)

func FuzzConvertMovie(f *testing.F) {
	f.Add(155, "The Dark Knight", "/poster.jpg", 8.5)
	f.Add(1, "", "", 0.0)
	f.Add(2, "Absolute", "https://cdn.example.com/p.jpg", 5.0)

	f.Fuzz(func(t *testing.T, id int, title, poster string, vote float64) {
		m := apiMovie{ID: id, Title: title, VoteAverage: vote}
		if poster != "" {
			m.PosterPath = &poster
		}

		summary := convertMovie(m, DefaultImageBaseURL)
		if summary.ID != id || summary.Title != title {
			t.Fatalf("identity fields changed: %+v", summary)
		}
		if strings.TrimSpace(poster) == "" {
			if summary.PosterURL != "" {
				t.Fatalf("blank poster path produced url %q", summary.PosterURL)
			}
			return
		}
		if !strings.HasPrefix(summary.PosterURL, "http://") && !strings.HasPrefix(summary.PosterURL, "https://") {
			t.Fatalf("poster url %q is not absolute", summary.PosterURL)
		}
	})
}

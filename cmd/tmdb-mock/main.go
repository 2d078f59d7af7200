package main

import (
	_ "embed"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
)

//go:embed fixtures.json
var defaultFixtures []byte

type movieEntry struct {
	ID          int              `json:"id"`
	Title       string           `json:"title"`
	Overview    string           `json:"overview"`
	PosterPath  *string          `json:"poster_path"`
	ReleaseDate string           `json:"release_date"`
	VoteAverage float64          `json:"vote_average"`
	VoteCount   int              `json:"vote_count"`
	Tagline     string           `json:"tagline"`
	Runtime     *int             `json:"runtime"`
	Status      string           `json:"status"`
	Budget      int64            `json:"budget"`
	Revenue     int64            `json:"revenue"`
	Genres      *json.RawMessage `json:"genres"`
	ImdbID      *string          `json:"imdb_id"`
	Homepage    string           `json:"homepage"`
	NowPlaying  bool             `json:"now_playing"`
}

type listEntry struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	PosterPath  *string `json:"poster_path"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
}

func main() {
	var (
		port   = flag.String("port", "9099", "port to listen on")
		data   = flag.String("data", "", "path to a fixture file; the built-in fixtures are used when empty")
		token  = flag.String("token", "", "require this bearer token when set")
		logReq = flag.Bool("log", false, "enable request logging")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "tmdb-mock", ReportTimestamp: true})

	file := defaultFixtures
	if *data != "" {
		var err error
		file, err = os.ReadFile(*data)
		if err != nil {
			logger.Fatal("read mock data", "err", err)
		}
	}

	var payload map[string]movieEntry
	if err := json.Unmarshal(file, &payload); err != nil {
		logger.Fatal("parse mock data", "err", err)
	}
	movies := make([]movieEntry, 0, len(payload))
	for _, m := range payload {
		movies = append(movies, m)
	}
	sort.Slice(movies, func(i, j int) bool { return movies[i].ID < movies[j].ID })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /3/search/movie", func(w http.ResponseWriter, r *http.Request) {
		query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("query")))
		results := make([]listEntry, 0)
		for _, m := range movies {
			if query != "" && strings.Contains(strings.ToLower(m.Title), query) {
				results = append(results, toListEntry(m))
			}
		}
		writeList(w, results)
	})
	mux.HandleFunc("GET /3/movie/now_playing", func(w http.ResponseWriter, r *http.Request) {
		results := make([]listEntry, 0)
		for _, m := range movies {
			if m.NowPlaying {
				results = append(results, toListEntry(m))
			}
		}
		writeList(w, results)
	})
	mux.HandleFunc("GET /3/movie/{id}", func(w http.ResponseWriter, r *http.Request) {
		entry, ok := payload[r.PathValue("id")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"status_code":    34,
				"status_message": "The resource you requested could not be found.",
				"success":        false,
			})
			return
		}
		writeJSON(w, http.StatusOK, entry)
	})

	var handler http.Handler = mux
	if *token != "" {
		handler = requireToken(*token, handler)
	}
	if *logReq {
		next := handler
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Info("request", "method", r.Method, "path", r.URL.Path, "query", r.URL.RawQuery)
			next.ServeHTTP(w, r)
		})
	}

	addr := ":" + *port
	logger.Info("mock tmdb listening", "addr", addr, "movies", len(movies))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server error", "err", err)
	}
}

func requireToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"status_code":    7,
				"status_message": "Invalid API key: You must be granted a valid key.",
				"success":        false,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func toListEntry(m movieEntry) listEntry {
	return listEntry{
		ID:          m.ID,
		Title:       m.Title,
		Overview:    m.Overview,
		PosterPath:  m.PosterPath,
		ReleaseDate: m.ReleaseDate,
		VoteAverage: m.VoteAverage,
	}
}

func writeList(w http.ResponseWriter, results []listEntry) {
	writeJSON(w, http.StatusOK, map[string]any{
		"page":          1,
		"results":       results,
		"total_pages":   1,
		"total_results": len(results),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

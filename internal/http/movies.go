package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/moviedeck/internal/catalog"
	"github.com/Clark-Hu/moviedeck/internal/docstore"
	"github.com/Clark-Hu/moviedeck/internal/domain"
	"github.com/Clark-Hu/moviedeck/internal/identity"
	"github.com/Clark-Hu/moviedeck/internal/repository"
)

const (
	maxRequestBody = 1 << 20 // 1 MiB
	maxTrending    = 50
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type movieListResponse struct {
	Results []domain.MovieSummary `json:"results"`
}

type trendingResponse struct {
	Results []catalog.TrendingMovie `json:"results"`
}

func (s *Server) handleSearchMovies(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	s.respondJSON(w, http.StatusOK, movieListResponse{Results: s.catalog.Search(r.Context(), query)})
}

func (s *Server) handleMovieDetails(w http.ResponseWriter, r *http.Request) {
	id, err := movieIDParam(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	detail, err := s.catalog.Details(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, "fetch movie", err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	limit, hydrate, err := trendingParams(r.URL.Query(), s.cfg.TrendingLimit, s.cfg.TrendingHydrate)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	movies, err := s.catalog.Trending(r.Context(), limit, hydrate)
	if err != nil {
		s.logger.Warn("list trending", "err", err)
		movies = []catalog.TrendingMovie{}
	}
	s.respondJSON(w, http.StatusOK, trendingResponse{Results: movies})
}

func trendingParams(query url.Values, defaultLimit int, defaultHydrate bool) (int, bool, error) {
	limit, hydrate := defaultLimit, defaultHydrate
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil || parsed <= 0 {
			return 0, false, fmt.Errorf("invalid limit value")
		}
		limit = min(parsed, maxTrending)
	}
	if val := strings.TrimSpace(query.Get("hydrate")); val != "" {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return 0, false, fmt.Errorf("invalid hydrate value")
		}
		hydrate = parsed
	}
	return limit, hydrate, nil
}

func movieIDParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return 0, fmt.Errorf("missing %s parameter", name)
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return id, nil
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Error("encode response", "err", err)
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "Request body too large")
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

// respondServiceError maps a service failure to a status code. The message
// names the action that failed.
func (s *Server) respondServiceError(w http.ResponseWriter, action string, err error) {
	var batch *repository.BatchError
	var remote *docstore.RemoteError
	switch {
	case errors.Is(err, repository.ErrUnauthenticated), errors.Is(err, identity.ErrUnauthenticated):
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Failed to "+action+": missing or invalid authentication information")
	case errors.Is(err, repository.ErrAlreadySaved):
		s.respondError(w, http.StatusConflict, "ALREADY_SAVED", "Failed to "+action+": "+err.Error())
	case errors.Is(err, repository.ErrInvalidInput):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Failed to "+action+": "+err.Error())
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, docstore.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Failed to "+action+": resource not found")
	case errors.Is(err, docstore.ErrConflict):
		s.respondError(w, http.StatusConflict, "CONFLICT", "Failed to "+action+": already exists")
	case errors.As(err, &batch):
		s.logger.Error(action, "err", err)
		s.respondJSON(w, http.StatusBadGateway, errorResponse{
			Code:    "PARTIAL_FAILURE",
			Message: "Failed to " + action,
			Details: map[string]int{"done": batch.Done, "total": batch.Total},
		})
	case errors.As(err, &remote) && remote.Status == http.StatusBadRequest:
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Failed to "+action+": "+remote.Message)
	default:
		s.logger.Error(action, "err", err)
		s.respondError(w, http.StatusBadGateway, "REMOTE_ERROR", "Failed to "+action)
	}
}

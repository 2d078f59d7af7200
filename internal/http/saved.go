package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/moviedeck/internal/domain"
	"github.com/Clark-Hu/moviedeck/internal/repository"
)

var (
	errMissingTitle = errors.New("missing title parameter")
	errInvalidTitle = errors.New("invalid title parameter")
)

type saveMovieRequest struct {
	MovieID    int    `json:"movieId"`
	Title      string `json:"title"`
	PosterPath string `json:"posterPath"`
	Category   string `json:"category"`
}

type savedListResponse struct {
	Collections map[string][]domain.SavedMovie `json:"collections"`
}

type isSavedResponse struct {
	MovieID int  `json:"movieId"`
	Saved   bool `json:"saved"`
}

type collectionRequest struct {
	Title string `json:"title"`
}

type collectionResponse struct {
	Title   string `json:"title"`
	Records int    `json:"records"`
}

func (s *Server) handleListSaved(w http.ResponseWriter, r *http.Request) {
	grouped, err := s.repo.Saved.ListGrouped(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.logger.Warn("list saved movies", "err", err)
		grouped = map[string][]domain.SavedMovie{}
	}
	s.respondJSON(w, http.StatusOK, savedListResponse{Collections: grouped})
}

func (s *Server) handleSaveMovie(w http.ResponseWriter, r *http.Request) {
	var req saveMovieRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	saved, created, err := s.repo.Saved.Save(r.Context(), userFrom(r.Context()), repository.SaveParams{
		MovieID:    req.MovieID,
		Title:      req.Title,
		PosterPath: req.PosterPath,
		Category:   req.Category,
	})
	if err != nil {
		s.respondServiceError(w, "save movie", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, saved)
}

func (s *Server) handleIsSaved(w http.ResponseWriter, r *http.Request) {
	id, err := movieIDParam(r, "movieId")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	saved, err := s.repo.Saved.IsSaved(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		s.logger.Warn("check saved movie", "movie_id", id, "err", err)
		saved = false
	}
	s.respondJSON(w, http.StatusOK, isSavedResponse{MovieID: id, Saved: saved})
}

func (s *Server) handleUnsaveMovie(w http.ResponseWriter, r *http.Request) {
	id, err := movieIDParam(r, "movieId")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := s.repo.Saved.Unsave(r.Context(), userFrom(r.Context()), id); err != nil {
		s.respondServiceError(w, "unsave movie", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	placeholder, created, err := s.repo.Collections.Create(r.Context(), userFrom(r.Context()), req.Title)
	if err != nil {
		s.respondServiceError(w, "create collection", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, collectionResponse{Title: placeholder.Category})
}

func (s *Server) handleRenameCollection(w http.ResponseWriter, r *http.Request) {
	title, err := titleParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	var req collectionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	moved, err := s.repo.Collections.Rename(r.Context(), userFrom(r.Context()), title, req.Title)
	if err != nil {
		s.respondServiceError(w, "rename collection", err)
		return
	}
	s.respondJSON(w, http.StatusOK, collectionResponse{Title: strings.TrimSpace(req.Title), Records: moved})
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	title, err := titleParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	removed, err := s.repo.Collections.Delete(r.Context(), userFrom(r.Context()), title)
	if err != nil {
		s.respondServiceError(w, "delete collection", err)
		return
	}
	s.respondJSON(w, http.StatusOK, collectionResponse{Title: title, Records: removed})
}

func titleParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "title")
	if raw == "" {
		return "", errMissingTitle
	}
	// chi matches against RawPath when it is set, and the param is still escaped.
	title := raw
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(raw)
		if err != nil {
			return "", errInvalidTitle
		}
		title = unescaped
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errInvalidTitle
	}
	return title, nil
}

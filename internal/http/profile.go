package httpserver

import (
	"net/http"

	"github.com/Clark-Hu/moviedeck/internal/repository"
)

type profileUpdateRequest struct {
	Username    *string `json:"username"`
	Bio         *string `json:"bio"`
	AvatarIndex *int    `json:"avatarIndex"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.repo.Profiles.Get(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.respondServiceError(w, "load profile", err)
		return
	}
	s.respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileUpdateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	profile, err := s.repo.Profiles.Update(r.Context(), userFrom(r.Context()), repository.ProfileUpdate{
		Username:    req.Username,
		Bio:         req.Bio,
		AvatarIndex: req.AvatarIndex,
	})
	if err != nil {
		s.respondServiceError(w, "update profile", err)
		return
	}
	s.respondJSON(w, http.StatusOK, profile)
}

package httpserver

import (
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/Clark-Hu/moviedeck/internal/docstore"
	"github.com/Clark-Hu/moviedeck/internal/domain"
)

const minPasswordLen = 8

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Session string `json:"session"`
}

type updateEmailRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updatePasswordRequest struct {
	Password    string `json:"password"`
	OldPassword string `json:"oldPassword"`
}

type sessionResponse struct {
	ID     string    `json:"id"`
	Secret string    `json:"secret"`
	Expire time.Time `json:"expire"`
}

type authResponse struct {
	User    domain.User     `json:"user"`
	JWT     string          `json:"jwt"`
	Session sessionResponse `json:"session"`
	Profile *domain.Profile `json:"profile,omitempty"`
}

type tokenResponse struct {
	JWT string `json:"jwt"`
}

func validateCredentials(email, password string) string {
	if _, err := mail.ParseAddress(email); err != nil {
		return "email must be a valid address"
	}
	if len(password) < minPasswordLen {
		return "password must be at least 8 characters"
	}
	return ""
}

// handleRegister creates the account, signs it in and seeds its profile.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	email, name := strings.TrimSpace(req.Email), strings.TrimSpace(req.Name)
	if msg := validateCredentials(email, req.Password); msg != "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", msg)
		return
	}
	if name == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required")
		return
	}

	ctx := r.Context()
	user, err := s.identity.CreateAccount(ctx, email, req.Password, name)
	if err != nil {
		s.respondServiceError(w, "register", err)
		return
	}
	resp, cred, err := s.signIn(r, email, req.Password)
	if err != nil {
		s.respondServiceError(w, "sign in", err)
		return
	}
	resp.User = user

	profile, err := s.repo.Profiles.Ensure(docstore.WithCredential(ctx, cred), &user, domain.DefaultBio)
	if err != nil {
		s.logger.Warn("create profile", "user", user.ID, "err", err)
	} else {
		resp.Profile = &profile
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email and password are required")
		return
	}

	resp, cred, err := s.signIn(r, email, req.Password)
	if err != nil {
		s.respondServiceError(w, "sign in", err)
		return
	}
	user, err := s.identity.CurrentUser(r.Context(), cred)
	if err != nil {
		s.respondServiceError(w, "load account", err)
		return
	}
	resp.User = user
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) signIn(r *http.Request, email, password string) (authResponse, docstore.Credential, error) {
	session, err := s.identity.CreateEmailSession(r.Context(), email, password)
	if err != nil {
		return authResponse{}, docstore.Credential{}, err
	}
	token, err := s.identity.CreateJWT(r.Context(), docstore.Credential{Session: session.Secret})
	if err != nil {
		return authResponse{}, docstore.Credential{}, err
	}
	return authResponse{
		JWT:     token,
		Session: sessionResponse{ID: session.ID, Secret: session.Secret, Expire: session.Expire},
	}, docstore.Credential{JWT: token}, nil
}

// handleRefresh mints a new JWT from a session secret.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Session) == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "session is required")
		return
	}
	token, err := s.identity.CreateJWT(r.Context(), docstore.Credential{Session: strings.TrimSpace(req.Session)})
	if err != nil {
		s.respondServiceError(w, "refresh token", err)
		return
	}
	s.respondJSON(w, http.StatusOK, tokenResponse{JWT: token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cred, _ := docstore.CredentialFrom(r.Context())
	if err := s.identity.DeleteCurrentSession(r.Context(), cred); err != nil {
		s.respondServiceError(w, "sign out", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, userFrom(r.Context()))
}

func (s *Server) handleUpdateEmail(w http.ResponseWriter, r *http.Request) {
	var req updateEmailRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email must be a valid address")
		return
	}
	if req.Password == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "password is required")
		return
	}

	cred, _ := docstore.CredentialFrom(r.Context())
	user, err := s.identity.UpdateEmail(r.Context(), cred, email, req.Password)
	if err != nil {
		s.respondServiceError(w, "update email", err)
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if len(req.Password) < minPasswordLen {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "password must be at least 8 characters")
		return
	}
	if req.OldPassword == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "oldPassword is required")
		return
	}

	cred, _ := docstore.CredentialFrom(r.Context())
	user, err := s.identity.UpdatePassword(r.Context(), cred, req.Password, req.OldPassword)
	if err != nil {
		s.respondServiceError(w, "update password", err)
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}

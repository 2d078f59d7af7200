package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Clark-Hu/moviedeck/internal/docstore"
	"github.com/Clark-Hu/moviedeck/internal/domain"
	"github.com/Clark-Hu/moviedeck/internal/identity"
)

type userKey struct{}

// userFrom returns the authenticated user, or nil.
func userFrom(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userKey{}).(*domain.User)
	return user
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// resolveUser looks up the caller named by the bearer token. A request
// without a token yields (nil, nil).
func (s *Server) resolveUser(r *http.Request) (*http.Request, *domain.User, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return r, nil, nil
	}
	cred := docstore.Credential{JWT: token}
	user, err := s.identity.CurrentUser(r.Context(), cred)
	if err != nil {
		return r, nil, err
	}
	ctx := docstore.WithCredential(r.Context(), cred)
	ctx = context.WithValue(ctx, userKey{}, &user)
	return r.WithContext(ctx), &user, nil
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, user, err := s.resolveUser(r)
		switch {
		case err != nil && !errors.Is(err, identity.ErrUnauthenticated):
			s.logger.Warn("resolve user", "err", err)
			s.respondError(w, http.StatusBadGateway, "REMOTE_ERROR", "Failed to verify session")
			return
		case err != nil || user == nil:
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// optionalUser attaches the user when the token resolves and otherwise
// continues anonymously.
func (s *Server) optionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolved, _, err := s.resolveUser(r)
		if err != nil {
			s.logger.Debug("anonymous request", "err", err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, resolved)
	})
}

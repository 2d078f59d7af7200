package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Clark-Hu/moviedeck/internal/catalog"
	"github.com/Clark-Hu/moviedeck/internal/config"
	"github.com/Clark-Hu/moviedeck/internal/docstore"
	"github.com/Clark-Hu/moviedeck/internal/domain"
	"github.com/Clark-Hu/moviedeck/internal/identity"
	"github.com/Clark-Hu/moviedeck/internal/repository"
)

// Identity is the account provider behind the auth endpoints and middleware.
type Identity interface {
	CurrentUser(ctx context.Context, cred docstore.Credential) (domain.User, error)
	CreateAccount(ctx context.Context, email, password, name string) (domain.User, error)
	CreateEmailSession(ctx context.Context, email, password string) (identity.Session, error)
	CreateJWT(ctx context.Context, cred docstore.Credential) (string, error)
	DeleteCurrentSession(ctx context.Context, cred docstore.Credential) error
	UpdateEmail(ctx context.Context, cred docstore.Credential, email, password string) (domain.User, error)
	UpdatePassword(ctx context.Context, cred docstore.Credential, newPassword, oldPassword string) (domain.User, error)
}

// HealthChecker reports whether the document store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the services the handlers call into.
type Deps struct {
	Repo     *repository.Repository
	Catalog  *catalog.Service
	Identity Identity
	// Health is optional; without it /healthz always reports ok.
	Health HealthChecker
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg      config.Config
	repo     *repository.Repository
	catalog  *catalog.Service
	identity Identity
	health   HealthChecker
	logger   *log.Logger
	router   chi.Router
	httpSrv  *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, deps Deps, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  logger.StandardLog(log.StandardLogOptions{ForceLevel: log.InfoLevel}),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:      cfg,
		repo:     deps.Repo,
		catalog:  deps.Catalog,
		identity: deps.Identity,
		health:   deps.Health,
		logger:   logger,
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.With(s.requireUser).Post("/logout", s.handleLogout)
	})
	s.router.Route("/account", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/", s.handleGetAccount)
		r.Patch("/email", s.handleUpdateEmail)
		r.Patch("/password", s.handleUpdatePassword)
	})

	s.router.Get("/movies", s.handleSearchMovies)
	s.router.Get("/movies/{id}", s.handleMovieDetails)
	s.router.Get("/trending", s.handleTrending)

	s.router.Route("/saved", func(r chi.Router) {
		r.With(s.optionalUser).Get("/{movieId}", s.handleIsSaved)
		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Get("/", s.handleListSaved)
			r.Post("/", s.handleSaveMovie)
			r.Delete("/{movieId}", s.handleUnsaveMovie)
		})
	})
	s.router.Route("/collections", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Post("/", s.handleCreateCollection)
		r.Patch("/{title}", s.handleRenameCollection)
		r.Delete("/{title}", s.handleDeleteCollection)
	})
	s.router.Route("/profile", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/", s.handleGetProfile)
		r.Patch("/", s.handleUpdateProfile)
	})
}

// Start boots the HTTP server and blocks until ctx ends or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.health.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check failed", "err", err)
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

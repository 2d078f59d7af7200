package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Clark-Hu/moviedeck/internal/catalog"
	"github.com/Clark-Hu/moviedeck/internal/config"
	"github.com/Clark-Hu/moviedeck/internal/docstore"
	httpserver "github.com/Clark-Hu/moviedeck/internal/http"
	"github.com/Clark-Hu/moviedeck/internal/identity"
	"github.com/Clark-Hu/moviedeck/internal/repository"
	"github.com/Clark-Hu/moviedeck/internal/store"
	"github.com/Clark-Hu/moviedeck/internal/tmdb"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "moviedeck",
	})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config error", "err", err)
	}
	logger.SetLevel(cfg.Level())

	docs, health, closeStore, err := openDocstore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open document store", "driver", cfg.DocstoreDriver, "err", err)
	}
	defer closeStore()

	movies, err := tmdb.NewHTTPClient(tmdb.Options{
		BaseURL:      cfg.TMDBURL,
		APIKey:       cfg.TMDBAPIKey,
		ImageBaseURL: cfg.TMDBImageBaseURL,
		Timeout:      time.Duration(cfg.TMDBTimeoutSecs) * time.Second,
		RateLimit:    cfg.TMDBRateLimit,
		CacheSize:    cfg.TMDBCacheSize,
		CacheTTL:     time.Duration(cfg.TMDBCacheTTLSecs) * time.Second,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("init tmdb client", "err", err)
	}

	accounts, err := identity.New(identity.Options{
		Endpoint:     cfg.AppwriteEndpoint,
		ProjectID:    cfg.AppwriteProjectID,
		Timeout:      time.Duration(cfg.DocstoreTimeoutSecs) * time.Second,
		UserCacheTTL: time.Duration(cfg.IdentityCacheSecs) * time.Second,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("init identity client", "err", err)
	}

	repo := repository.New(docs, repository.Options{
		SavedCollection:    cfg.SavedCollectionID,
		CountersCollection: cfg.MetricsCollectionID,
		ProfilesCollection: cfg.UsersCollectionID,
		AvatarCount:        cfg.AvatarCount,
		PageSize:           cfg.SavedPageSize,
		TrendingScan:       cfg.TrendingScan,
		TrendingOrder:      repository.TrendingOrder(cfg.TrendingOrder),
		ImageBaseURL:       cfg.TMDBImageBaseURL,
		Logger:             logger,
	})

	server := httpserver.New(cfg, httpserver.Deps{
		Repo:     repo,
		Catalog:  catalog.New(movies, repo.Counters, logger),
		Identity: accounts,
		Health:   health,
	}, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			logger.Error("server error", "err", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("graceful shutdown error", "err", err)
	}
}

// openDocstore builds the configured backend. The returned close func is never nil.
func openDocstore(ctx context.Context, cfg config.Config, logger *log.Logger) (docstore.Store, httpserver.HealthChecker, func(), error) {
	switch cfg.DocstoreDriver {
	case config.DriverPostgres:
		dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		st, err := store.New(dbCtx, cfg.DBURL, store.Options{
			MaxConns:               int32(cfg.DBMaxConns),
			MinConns:               int32(cfg.DBMinConns),
			MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
			MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
			ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
			StatementCacheCapacity: cfg.DBStatementCache,
			Logger:                 logger,
		})
		if err != nil {
			return nil, nil, func() {}, err
		}
		if err := st.Migrate(dbCtx); err != nil {
			st.Close()
			return nil, nil, func() {}, err
		}
		closeStore := func() {
			if stat := st.Stats(); stat != nil {
				logger.Info("closing database pool", "total", stat.TotalConns(), "acquired", stat.AcquiredConns(),
					"acquire_count", stat.AcquireCount())
			}
			st.Close()
		}
		return st, st, closeStore, nil

	case config.DriverMemory:
		logger.Warn("using in-memory document store; data is lost on exit")
		return docstore.NewMemoryStore(), nil, func() {}, nil

	default:
		client, err := docstore.NewAppwriteClient(docstore.AppwriteOptions{
			Endpoint:        cfg.AppwriteEndpoint,
			ProjectID:       cfg.AppwriteProjectID,
			DatabaseID:      cfg.AppwriteDatabaseID,
			APIKey:          cfg.AppwriteAPIKey,
			AtomicIncrement: cfg.AtomicIncrement,
			Timeout:         time.Duration(cfg.DocstoreTimeoutSecs) * time.Second,
			Logger:          logger,
		})
		if err != nil {
			return nil, nil, func() {}, err
		}
		return client, client, func() {}, nil
	}
}

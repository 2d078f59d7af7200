package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

// Document store drivers.
const (
	DriverAppwrite = "appwrite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures all runtime configuration. Values come from defaults, then
// the optional TOML file named by CONFIG_FILE, then environment variables.
type Config struct {
	Port             string `toml:"port"`
	ReadTimeoutSecs  int    `toml:"server_read_timeout"`
	WriteTimeoutSecs int    `toml:"server_write_timeout"`
	IdleTimeoutSecs  int    `toml:"server_idle_timeout"`
	LogLevel         string `toml:"log_level"`

	DocstoreDriver      string `toml:"docstore_driver"`
	DocstoreTimeoutSecs int    `toml:"docstore_timeout_secs"`
	AtomicIncrement     bool   `toml:"docstore_atomic_increment"`

	AppwriteEndpoint    string `toml:"appwrite_endpoint"`
	AppwriteProjectID   string `toml:"appwrite_project_id"`
	AppwriteDatabaseID  string `toml:"appwrite_database_id"`
	AppwriteAPIKey      string `toml:"appwrite_api_key"`
	SavedCollectionID   string `toml:"appwrite_saved_collection_id"`
	MetricsCollectionID string `toml:"appwrite_metrics_collection_id"`
	UsersCollectionID   string `toml:"appwrite_users_collection_id"`
	IdentityCacheSecs   int    `toml:"identity_cache_secs"`

	DBURL             string `toml:"db_url"`
	DBMaxConns        int    `toml:"db_max_conns"`
	DBMinConns        int    `toml:"db_min_conns"`
	DBMaxIdleSecs     int    `toml:"db_max_conn_idle_secs"`
	DBMaxLifeSecs     int    `toml:"db_max_conn_lifetime_secs"`
	DBConnTimeoutSecs int    `toml:"db_conn_timeout_secs"`
	DBStatementCache  int    `toml:"db_statement_cache_capacity"`

	TMDBURL          string  `toml:"tmdb_url"`
	TMDBAPIKey       string  `toml:"tmdb_api_key"`
	TMDBImageBaseURL string  `toml:"tmdb_image_base_url"`
	TMDBTimeoutSecs  int     `toml:"tmdb_timeout_secs"`
	TMDBRateLimit    float64 `toml:"tmdb_rate_limit"`
	TMDBCacheSize    int     `toml:"tmdb_cache_size"`
	TMDBCacheTTLSecs int     `toml:"tmdb_cache_ttl_secs"`

	SavedPageSize   int    `toml:"saved_page_size"`
	TrendingLimit   int    `toml:"trending_limit"`
	TrendingScan    int    `toml:"trending_scan"`
	TrendingOrder   string `toml:"trending_order"`
	TrendingHydrate bool   `toml:"trending_hydrate"`
	AvatarCount     int    `toml:"avatar_count"`
}

func defaults() Config {
	return Config{
		Port:                "8080",
		ReadTimeoutSecs:     15,
		WriteTimeoutSecs:    15,
		IdleTimeoutSecs:     60,
		LogLevel:            "info",
		DocstoreDriver:      DriverAppwrite,
		DocstoreTimeoutSecs: 10,
		AppwriteEndpoint:    "https://cloud.appwrite.io/v1",
		SavedCollectionID:   "saved",
		MetricsCollectionID: "metrics",
		UsersCollectionID:   "users",
		IdentityCacheSecs:   30,
		DBMaxConns:          20,
		DBMinConns:          2,
		DBMaxIdleSecs:       300,
		DBMaxLifeSecs:       3600,
		DBConnTimeoutSecs:   10,
		DBStatementCache:    256,
		TMDBURL:             "https://api.themoviedb.org/3",
		TMDBImageBaseURL:    "https://image.tmdb.org/t/p/w500",
		TMDBTimeoutSecs:     5,
		TMDBRateLimit:       20,
		TMDBCacheSize:       512,
		TMDBCacheTTLSecs:    600,
		SavedPageSize:       100,
		TrendingLimit:       10,
		TrendingScan:        100,
		TrendingOrder:       "count",
		AvatarCount:         6,
	}
}

// Load reads configuration, applying defaults and validation.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse CONFIG_FILE %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.ReadTimeoutSecs = getEnvInt("SERVER_READ_TIMEOUT", cfg.ReadTimeoutSecs)
	cfg.WriteTimeoutSecs = getEnvInt("SERVER_WRITE_TIMEOUT", cfg.WriteTimeoutSecs)
	cfg.IdleTimeoutSecs = getEnvInt("SERVER_IDLE_TIMEOUT", cfg.IdleTimeoutSecs)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.DocstoreDriver = strings.ToLower(getEnv("DOCSTORE_DRIVER", cfg.DocstoreDriver))
	cfg.DocstoreTimeoutSecs = getEnvInt("DOCSTORE_TIMEOUT_SECS", cfg.DocstoreTimeoutSecs)
	cfg.AtomicIncrement = getEnvBool("DOCSTORE_ATOMIC_INCREMENT", cfg.AtomicIncrement)

	cfg.AppwriteEndpoint = getEnv("APPWRITE_ENDPOINT", cfg.AppwriteEndpoint)
	cfg.AppwriteProjectID = getEnv("APPWRITE_PROJECT_ID", cfg.AppwriteProjectID)
	cfg.AppwriteDatabaseID = getEnv("APPWRITE_DATABASE_ID", cfg.AppwriteDatabaseID)
	cfg.AppwriteAPIKey = getEnv("APPWRITE_API_KEY", cfg.AppwriteAPIKey)
	cfg.SavedCollectionID = getEnv("APPWRITE_SAVED_COLLECTION_ID", cfg.SavedCollectionID)
	cfg.MetricsCollectionID = getEnv("APPWRITE_METRICS_COLLECTION_ID", cfg.MetricsCollectionID)
	cfg.UsersCollectionID = getEnv("APPWRITE_USERS_COLLECTION_ID", cfg.UsersCollectionID)
	cfg.IdentityCacheSecs = getEnvInt("IDENTITY_CACHE_SECS", cfg.IdentityCacheSecs)

	cfg.DBURL = getEnv("DB_URL", cfg.DBURL)
	cfg.DBMaxConns = getEnvInt("DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.DBMinConns = getEnvInt("DB_MIN_CONNS", cfg.DBMinConns)
	cfg.DBMaxIdleSecs = getEnvInt("DB_MAX_CONN_IDLE_SECS", cfg.DBMaxIdleSecs)
	cfg.DBMaxLifeSecs = getEnvInt("DB_MAX_CONN_LIFETIME_SECS", cfg.DBMaxLifeSecs)
	cfg.DBConnTimeoutSecs = getEnvInt("DB_CONN_TIMEOUT_SECS", cfg.DBConnTimeoutSecs)
	cfg.DBStatementCache = getEnvInt("DB_STATEMENT_CACHE_CAPACITY", cfg.DBStatementCache)

	cfg.TMDBURL = getEnv("TMDB_URL", cfg.TMDBURL)
	cfg.TMDBAPIKey = getEnv("TMDB_API_KEY", cfg.TMDBAPIKey)
	cfg.TMDBImageBaseURL = getEnv("TMDB_IMAGE_BASE_URL", cfg.TMDBImageBaseURL)
	cfg.TMDBTimeoutSecs = getEnvInt("TMDB_TIMEOUT_SECS", cfg.TMDBTimeoutSecs)
	cfg.TMDBRateLimit = getEnvFloat("TMDB_RATE_LIMIT", cfg.TMDBRateLimit)
	cfg.TMDBCacheSize = getEnvInt("TMDB_CACHE_SIZE", cfg.TMDBCacheSize)
	cfg.TMDBCacheTTLSecs = getEnvInt("TMDB_CACHE_TTL_SECS", cfg.TMDBCacheTTLSecs)

	cfg.SavedPageSize = getEnvInt("SAVED_PAGE_SIZE", cfg.SavedPageSize)
	cfg.TrendingLimit = getEnvInt("TRENDING_LIMIT", cfg.TrendingLimit)
	cfg.TrendingScan = getEnvInt("TRENDING_SCAN", cfg.TrendingScan)
	cfg.TrendingOrder = strings.ToLower(getEnv("TRENDING_ORDER", cfg.TrendingOrder))
	cfg.TrendingHydrate = getEnvBool("TRENDING_HYDRATE", cfg.TrendingHydrate)
	cfg.AvatarCount = getEnvInt("AVATAR_COUNT", cfg.AvatarCount)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a log level", cfg.LogLevel)
	}
	if cfg.AppwriteEndpoint == "" {
		return fmt.Errorf("APPWRITE_ENDPOINT is required")
	}
	if cfg.AppwriteProjectID == "" {
		return fmt.Errorf("APPWRITE_PROJECT_ID is required")
	}

	switch cfg.DocstoreDriver {
	case DriverAppwrite:
		if cfg.AppwriteDatabaseID == "" {
			return fmt.Errorf("APPWRITE_DATABASE_ID is required")
		}
		if cfg.DocstoreTimeoutSecs <= 0 {
			return fmt.Errorf("DOCSTORE_TIMEOUT_SECS must be positive")
		}
	case DriverPostgres:
		if cfg.DBURL == "" {
			return fmt.Errorf("DB_URL is required")
		}
		if cfg.DBMaxConns <= 0 {
			return fmt.Errorf("DB_MAX_CONNS must be positive")
		}
		if cfg.DBMinConns < 0 {
			return fmt.Errorf("DB_MIN_CONNS must be non-negative")
		}
		if cfg.DBMinConns > cfg.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
		}
		if cfg.DBStatementCache < 0 {
			return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("DOCSTORE_DRIVER must be one of %s, %s, %s", DriverAppwrite, DriverPostgres, DriverMemory)
	}

	if cfg.SavedCollectionID == "" || cfg.MetricsCollectionID == "" || cfg.UsersCollectionID == "" {
		return fmt.Errorf("APPWRITE_*_COLLECTION_ID must not be empty")
	}
	if cfg.TMDBAPIKey == "" {
		return fmt.Errorf("TMDB_API_KEY is required")
	}
	if cfg.TMDBTimeoutSecs <= 0 {
		return fmt.Errorf("TMDB_TIMEOUT_SECS must be positive")
	}
	if cfg.TMDBRateLimit < 0 {
		return fmt.Errorf("TMDB_RATE_LIMIT must be non-negative")
	}
	if cfg.TMDBCacheSize < 0 {
		return fmt.Errorf("TMDB_CACHE_SIZE must be non-negative")
	}
	if cfg.SavedPageSize <= 0 || cfg.SavedPageSize > 5000 {
		return fmt.Errorf("SAVED_PAGE_SIZE must be between 1 and 5000")
	}
	if cfg.TrendingLimit <= 0 {
		return fmt.Errorf("TRENDING_LIMIT must be positive")
	}
	if cfg.TrendingScan < cfg.TrendingLimit {
		return fmt.Errorf("TRENDING_SCAN cannot be below TRENDING_LIMIT")
	}
	if cfg.TrendingOrder != "count" && cfg.TrendingOrder != "created" {
		return fmt.Errorf("TRENDING_ORDER must be count or created")
	}
	if cfg.AvatarCount < 0 {
		return fmt.Errorf("AVATAR_COUNT must be non-negative")
	}
	return nil
}

// Level returns the parsed log level; Load has already validated it.
func (cfg Config) Level() log.Level {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

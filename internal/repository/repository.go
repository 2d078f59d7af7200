package repository

import (
	"errors"

	"github.com/charmbracelet/log"

	"github.com/Clark-Hu/moviedeck/internal/docstore"
)

var (
	// ErrUnauthenticated is returned by user-scoped operations called without a user.
	ErrUnauthenticated = errors.New("repository: not authenticated")
	// ErrAlreadySaved indicates the movie is already saved under another category.
	ErrAlreadySaved = errors.New("repository: movie already saved")
	// ErrInvalidInput indicates missing or malformed arguments.
	ErrInvalidInput = errors.New("repository: invalid input")
)

const (
	DefaultSavedCollection    = "saved"
	DefaultCountersCollection = "metrics"
	DefaultProfilesCollection = "users"
	DefaultTrendingLimit      = 10
	DefaultTrendingScan       = 100
	DefaultImageBaseURL       = "https://image.tmdb.org/t/p/w500"
)

// TrendingOrder selects how the trending scan window is sorted.
type TrendingOrder string

const (
	// OrderByCount ranks counters by hit count.
	OrderByCount TrendingOrder = "count"
	// OrderByCreated ranks counters by first-hit time, newest first.
	OrderByCreated TrendingOrder = "created"
)

// Options configures collection ids and paging for the repositories.
type Options struct {
	SavedCollection    string
	CountersCollection string
	ProfilesCollection string
	// AvatarCount bounds profile avatar indexes; zero leaves them unbounded.
	AvatarCount int
	// PageSize is the page length used when walking every record of a user.
	PageSize      int
	TrendingScan  int
	TrendingOrder TrendingOrder
	ImageBaseURL  string
	Logger        *log.Logger
}

// Repository aggregates the document-backed repositories.
type Repository struct {
	Saved       *SavedMoviesRepository
	Counters    *CountersRepository
	Collections *CollectionsRepository
	Profiles    *ProfilesRepository
}

// New constructs a Repository backed by the provided document store.
func New(st docstore.Store, opts Options) *Repository {
	if opts.SavedCollection == "" {
		opts.SavedCollection = DefaultSavedCollection
	}
	if opts.CountersCollection == "" {
		opts.CountersCollection = DefaultCountersCollection
	}
	if opts.ProfilesCollection == "" {
		opts.ProfilesCollection = DefaultProfilesCollection
	}
	if opts.PageSize <= 0 {
		opts.PageSize = docstore.DefaultPageSize
	}
	if opts.TrendingScan <= 0 {
		opts.TrendingScan = DefaultTrendingScan
	}
	if opts.TrendingOrder == "" {
		opts.TrendingOrder = OrderByCount
	}
	if opts.ImageBaseURL == "" {
		opts.ImageBaseURL = DefaultImageBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("repository")

	return &Repository{
		Saved: &SavedMoviesRepository{
			store:      st,
			collection: opts.SavedCollection,
			pageSize:   opts.PageSize,
			imageBase:  opts.ImageBaseURL,
			locks:      newKeyedMutex(),
			logger:     logger,
		},
		Counters: &CountersRepository{
			store:      st,
			collection: opts.CountersCollection,
			scan:       opts.TrendingScan,
			order:      opts.TrendingOrder,
			imageBase:  opts.ImageBaseURL,
			locks:      newKeyedMutex(),
			logger:     logger,
		},
		Collections: &CollectionsRepository{
			store:      st,
			collection: opts.SavedCollection,
			pageSize:   opts.PageSize,
			logger:     logger,
		},
		Profiles: &ProfilesRepository{
			store:      st,
			collection: opts.ProfilesCollection,
			maxAvatar:  opts.AvatarCount,
			locks:      newKeyedMutex(),
			logger:     logger,
		},
	}
}

package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/Clark-Hu/moviedeck/internal/domain"
)

// ErrNotFound is returned when upstream cannot find the requested movie.
var ErrNotFound = errors.New("tmdb: not found")

const (
	DefaultBaseURL      = "https://api.themoviedb.org/3"
	DefaultImageBaseURL = "https://image.tmdb.org/t/p/w500"
)

// Client defines the contract for querying movie metadata.
type Client interface {
	Search(ctx context.Context, query string) ([]domain.MovieSummary, error)
	NowPlaying(ctx context.Context) ([]domain.MovieSummary, error)
	Details(ctx context.Context, id int) (domain.MovieDetail, error)
}

// Options configures HTTPClient. Zero values fall back to sensible defaults.
type Options struct {
	BaseURL      string
	APIKey       string
	ImageBaseURL string
	Timeout      time.Duration
	// RateLimit is the sustained request rate per second; zero disables limiting.
	RateLimit  float64
	Attempts   uint
	RetryDelay time.Duration
	// CacheSize bounds the details cache; zero disables it.
	CacheSize int
	CacheTTL  time.Duration
	Logger    *log.Logger
}

// HTTPClient implements Client over the TMDB v3 REST API.
type HTTPClient struct {
	baseURL    *url.URL
	imageBase  string
	client     *http.Client
	limiter    *rate.Limiter
	attempts   uint
	retryDelay time.Duration
	details    *expirable.LRU[int, domain.MovieDetail]
	logger     *log.Logger
}

// NewHTTPClient constructs a new HTTP-backed metadata client.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	parsed, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse tmdb url: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	imageBase := opts.ImageBaseURL
	if imageBase == "" {
		imageBase = DefaultImageBaseURL
	}
	attempts := opts.Attempts
	if attempts == 0 {
		attempts = 3
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 200 * time.Millisecond
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.APIKey != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.APIKey, TokenType: "Bearer"}),
			Base:   transport,
		}
	}

	c := &HTTPClient{
		baseURL:    parsed,
		imageBase:  imageBase,
		client:     &http.Client{Timeout: timeout, Transport: transport},
		attempts:   attempts,
		retryDelay: retryDelay,
		logger:     logger.WithPrefix("tmdb"),
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	if opts.CacheSize > 0 {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		c.details = expirable.NewLRU[int, domain.MovieDetail](opts.CacheSize, nil, ttl)
	}
	return c, nil
}

// Search returns movies whose title matches query.
func (c *HTTPClient) Search(ctx context.Context, query string) ([]domain.MovieSummary, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")

	var payload listResponse
	if err := c.get(ctx, "/search/movie", params, &payload); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return c.convertList(payload), nil
}

// NowPlaying returns the movies currently in theatres.
func (c *HTTPClient) NowPlaying(ctx context.Context) ([]domain.MovieSummary, error) {
	var payload listResponse
	if err := c.get(ctx, "/movie/now_playing", nil, &payload); err != nil {
		return nil, fmt.Errorf("now playing: %w", err)
	}
	return c.convertList(payload), nil
}

// Details fetches the full entry for one movie. Results are cached when a
// cache was configured.
func (c *HTTPClient) Details(ctx context.Context, id int) (domain.MovieDetail, error) {
	if id <= 0 {
		return domain.MovieDetail{}, ErrNotFound
	}
	if c.details != nil {
		if detail, ok := c.details.Get(id); ok {
			return detail, nil
		}
	}

	var payload apiDetail
	if err := c.get(ctx, "/movie/"+strconv.Itoa(id), nil, &payload); err != nil {
		return domain.MovieDetail{}, fmt.Errorf("details %d: %w", id, err)
	}
	detail := c.convertDetail(payload)
	if c.details != nil {
		c.details.Add(id, detail)
	}
	return detail, nil
}

// statusError is a non-2xx response other than 404.
type statusError struct {
	Status  int
	Message string
}

func (e *statusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("tmdb: upstream returned %d", e.Status)
	}
	return fmt.Sprintf("tmdb: upstream returned %d: %s", e.Status, e.Message)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrNotFound) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	var de *decodeError
	return !errors.As(err, &de)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode tmdb response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint, err := url.Parse(c.baseURL.String() + path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	if len(params) > 0 {
		endpoint.RawQuery = params.Encode()
	}

	return retry.Do(
		func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return retry.Unrecoverable(err)
				}
			}
			return c.getOnce(ctx, endpoint.String(), out)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying request", "path", path, "attempt", n+1, "err", err)
		}),
	)
}

func (c *HTTPClient) getOnce(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &decodeError{err: err}
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	default:
		var payload errorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(raw, &payload); err != nil || payload.StatusMessage == "" {
			payload.StatusMessage = strings.TrimSpace(string(raw))
		}
		c.logger.Warn("unexpected status", "status", resp.StatusCode, "url", endpoint)
		return &statusError{Status: resp.StatusCode, Message: payload.StatusMessage}
	}
}

type listResponse struct {
	Page    int        `json:"page"`
	Results []apiMovie `json:"results"`
}

type apiMovie struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	PosterPath  *string `json:"poster_path"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
}

type apiDetail struct {
	apiMovie
	Tagline  string `json:"tagline"`
	Runtime  *int   `json:"runtime"`
	Status   string `json:"status"`
	Budget   int64  `json:"budget"`
	Revenue  int64  `json:"revenue"`
	Genres   []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"genres"`
	VoteCount int     `json:"vote_count"`
	ImdbID    *string `json:"imdb_id"`
	Homepage  string  `json:"homepage"`
}

type errorResponse struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

func (c *HTTPClient) convertList(payload listResponse) []domain.MovieSummary {
	out := make([]domain.MovieSummary, 0, len(payload.Results))
	for _, m := range payload.Results {
		if m.ID <= 0 {
			continue
		}
		out = append(out, convertMovie(m, c.imageBase))
	}
	return out
}

func convertMovie(m apiMovie, imageBase string) domain.MovieSummary {
	summary := domain.MovieSummary{
		ID:          m.ID,
		Title:       m.Title,
		Overview:    m.Overview,
		ReleaseDate: m.ReleaseDate,
		VoteAverage: m.VoteAverage,
	}
	if m.PosterPath != nil {
		summary.PosterPath = *m.PosterPath
		summary.PosterURL = domain.PosterURL(imageBase, *m.PosterPath)
	}
	return summary
}

func (c *HTTPClient) convertDetail(payload apiDetail) domain.MovieDetail {
	detail := domain.MovieDetail{
		MovieSummary: convertMovie(payload.apiMovie, c.imageBase),
		Tagline:      payload.Tagline,
		Status:       payload.Status,
		Budget:       payload.Budget,
		Revenue:      payload.Revenue,
		VoteCount:    payload.VoteCount,
		HomepageURL:  payload.Homepage,
	}
	if payload.Runtime != nil {
		detail.Runtime = *payload.Runtime
	}
	if payload.ImdbID != nil {
		detail.ImdbID = *payload.ImdbID
	}
	for _, g := range payload.Genres {
		detail.Genres = append(detail.Genres, domain.Genre{ID: g.ID, Name: g.Name})
	}
	return detail
}

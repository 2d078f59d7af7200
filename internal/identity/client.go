// Package identity talks to the Appwrite account API: sign-up, email
// sessions, JWT minting and account updates for the current user.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Clark-Hu/moviedeck/internal/docstore"
	"github.com/Clark-Hu/moviedeck/internal/domain"
)

// ErrUnauthenticated is returned for missing, expired or rejected credentials.
var ErrUnauthenticated = errors.New("identity: not authenticated")

// Options configures a Client.
type Options struct {
	Endpoint  string
	ProjectID string
	Timeout   time.Duration
	// UserCacheTTL keeps resolved users per JWT for this long; zero disables caching.
	UserCacheTTL time.Duration
	Logger       *log.Logger
}

// Session is a freshly created email session.
type Session struct {
	ID     string    `json:"id"`
	UserID string    `json:"userId"`
	Secret string    `json:"-"`
	Expire time.Time `json:"expire"`
}

// Client is an Appwrite account API client.
type Client struct {
	baseURL   *url.URL
	projectID string
	client    *http.Client
	users     *expirable.LRU[string, domain.User]
	now       func() time.Time
	logger    *log.Logger
}

// New constructs a Client for one Appwrite project.
func New(opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("identity: project id is required")
	}
	parsed, err := url.Parse(strings.TrimRight(opts.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse appwrite endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("appwrite endpoint %q must be absolute", opts.Endpoint)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:   parsed,
		projectID: opts.ProjectID,
		client:    docstore.NewHTTPClient(timeout),
		now:       time.Now,
		logger:    logger.WithPrefix("identity"),
	}
	if opts.UserCacheTTL > 0 {
		c.users = expirable.NewLRU[string, domain.User](1024, nil, opts.UserCacheTTL)
	}
	return c, nil
}

type apiUser struct {
	ID                string `json:"$id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	EmailVerification bool   `json:"emailVerification"`
	Registration      string `json:"registration"`
}

func (u apiUser) toDomain() domain.User {
	user := domain.User{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		EmailVerified: u.EmailVerification,
	}
	if t, err := time.Parse(time.RFC3339Nano, u.Registration); err == nil {
		user.RegisteredAt = t.UTC()
	}
	return user
}

type apiSession struct {
	ID     string `json:"$id"`
	UserID string `json:"userId"`
	Secret string `json:"secret"`
	Expire string `json:"expire"`
}

// CurrentUser resolves the account that cred belongs to.
func (c *Client) CurrentUser(ctx context.Context, cred docstore.Credential) (domain.User, error) {
	if err := c.checkCredential(cred); err != nil {
		return domain.User{}, err
	}
	if c.users != nil && cred.JWT != "" {
		if user, ok := c.users.Get(cred.JWT); ok {
			return user, nil
		}
	}

	var payload apiUser
	if _, err := c.do(ctx, http.MethodGet, "/account", cred, nil, &payload); err != nil {
		return domain.User{}, fmt.Errorf("get account: %w", err)
	}
	user := payload.toDomain()
	if c.users != nil && cred.JWT != "" {
		c.users.Add(cred.JWT, user)
	}
	return user, nil
}

// CreateAccount registers a new email/password account.
func (c *Client) CreateAccount(ctx context.Context, email, password, name string) (domain.User, error) {
	body := map[string]string{
		"userId":   "unique()",
		"email":    email,
		"password": password,
		"name":     name,
	}
	var payload apiUser
	if _, err := c.do(ctx, http.MethodPost, "/account", docstore.Credential{}, body, &payload); err != nil {
		return domain.User{}, fmt.Errorf("create account: %w", err)
	}
	return payload.toDomain(), nil
}

// CreateEmailSession signs in with email and password. The session secret is
// read from the response body or from the session cookie.
func (c *Client) CreateEmailSession(ctx context.Context, email, password string) (Session, error) {
	body := map[string]string{"email": email, "password": password}
	var payload apiSession
	resp, err := c.do(ctx, http.MethodPost, "/account/sessions/email", docstore.Credential{}, body, &payload)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	session := Session{ID: payload.ID, UserID: payload.UserID, Secret: payload.Secret}
	if t, err := time.Parse(time.RFC3339Nano, payload.Expire); err == nil {
		session.Expire = t.UTC()
	}
	if session.Secret == "" {
		name := docstore.SessionCookieName(c.projectID)
		for _, cookie := range resp.Cookies() {
			if cookie.Name == name || cookie.Name == name+"_legacy" {
				session.Secret = cookie.Value
				break
			}
		}
	}
	if session.Secret == "" {
		return Session{}, fmt.Errorf("create session: no session secret in response")
	}
	return session, nil
}

// CreateJWT mints a short-lived JWT for the session behind cred.
func (c *Client) CreateJWT(ctx context.Context, cred docstore.Credential) (string, error) {
	if err := c.checkCredential(cred); err != nil {
		return "", err
	}
	var payload struct {
		JWT string `json:"jwt"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/account/jwt", cred, map[string]string{}, &payload); err != nil {
		return "", fmt.Errorf("create jwt: %w", err)
	}
	return payload.JWT, nil
}

// DeleteCurrentSession signs the current session out.
func (c *Client) DeleteCurrentSession(ctx context.Context, cred docstore.Credential) error {
	if err := c.checkCredential(cred); err != nil {
		return err
	}
	if _, err := c.do(ctx, http.MethodDelete, "/account/sessions/current", cred, nil, nil); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	c.forget(cred)
	return nil
}

// UpdateEmail changes the account email; password is the current password.
func (c *Client) UpdateEmail(ctx context.Context, cred docstore.Credential, email, password string) (domain.User, error) {
	return c.updateAccount(ctx, cred, "/account/email", map[string]string{"email": email, "password": password})
}

// UpdatePassword replaces the account password.
func (c *Client) UpdatePassword(ctx context.Context, cred docstore.Credential, newPassword, oldPassword string) (domain.User, error) {
	return c.updateAccount(ctx, cred, "/account/password", map[string]string{"password": newPassword, "oldPassword": oldPassword})
}

func (c *Client) updateAccount(ctx context.Context, cred docstore.Credential, path string, body map[string]string) (domain.User, error) {
	if err := c.checkCredential(cred); err != nil {
		return domain.User{}, err
	}
	var payload apiUser
	if _, err := c.do(ctx, http.MethodPatch, path, cred, body, &payload); err != nil {
		return domain.User{}, fmt.Errorf("update %s: %w", strings.TrimPrefix(path, "/account/"), err)
	}
	c.forget(cred)
	return payload.toDomain(), nil
}

func (c *Client) forget(cred docstore.Credential) {
	if c.users != nil && cred.JWT != "" {
		c.users.Remove(cred.JWT)
	}
}

// checkCredential rejects empty credentials and JWTs whose exp claim has
// passed. The signature is verified by Appwrite, not here.
func (c *Client) checkCredential(cred docstore.Credential) error {
	if cred.IsZero() {
		return ErrUnauthenticated
	}
	if cred.JWT == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(cred.JWT, claims); err != nil {
		return fmt.Errorf("%w: malformed token", ErrUnauthenticated)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("%w: malformed expiry", ErrUnauthenticated)
	}
	if exp != nil && !exp.After(c.now()) {
		return fmt.Errorf("%w: token expired", ErrUnauthenticated)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, cred docstore.Credential, body, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Appwrite-Project", c.projectID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case cred.JWT != "":
		req.Header.Set("X-Appwrite-JWT", cred.JWT)
	case cred.Session != "":
		req.AddCookie(&http.Cookie{Name: docstore.SessionCookieName(c.projectID), Value: cred.Session})
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remote := docstore.DecodeRemoteError(resp)
		if resp.StatusCode == http.StatusUnauthorized {
			return resp, fmt.Errorf("%w: %w", ErrUnauthenticated, remote)
		}
		if resp.StatusCode >= 500 {
			c.logger.Warn("unexpected status", "method", method, "path", path, "status", resp.StatusCode)
		}
		return resp, remote
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

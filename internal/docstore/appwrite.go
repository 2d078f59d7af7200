package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/xid"
)

const maxErrorBody = 64 << 10

// AppwriteOptions configures an AppwriteClient.
type AppwriteOptions struct {
	Endpoint   string
	ProjectID  string
	DatabaseID string
	// APIKey is sent only on calls that carry no user credential.
	APIKey string
	// AtomicIncrement enables the server-side increment endpoint (Appwrite 1.7+).
	AtomicIncrement bool
	Timeout         time.Duration
	Logger          *log.Logger
}

// AppwriteClient implements Store and Incrementer over the Appwrite databases REST API.
type AppwriteClient struct {
	baseURL         *url.URL
	projectID       string
	databaseID      string
	apiKey          string
	atomicIncrement bool
	client          *http.Client
	logger          *log.Logger
}

// NewAppwriteClient constructs a client for one project database.
func NewAppwriteClient(opts AppwriteOptions) (*AppwriteClient, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("appwrite: project id is required")
	}
	if opts.DatabaseID == "" {
		return nil, fmt.Errorf("appwrite: database id is required")
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

	return &AppwriteClient{
		baseURL:         parsed,
		projectID:       opts.ProjectID,
		databaseID:      opts.DatabaseID,
		apiKey:          opts.APIKey,
		atomicIncrement: opts.AtomicIncrement,
		client:          NewHTTPClient(timeout),
		logger:          logger.WithPrefix("docstore"),
	}, nil
}

// NewHTTPClient builds the tuned http.Client shared by the outbound clients.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(timeout),
	}
}

// NewTransport returns a transport whose dial, TLS and header timeouts follow timeout.
func NewTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   8,
	}
}

type listResponse struct {
	Total     int        `json:"total"`
	Documents []Document `json:"documents"`
}

type createRequest struct {
	DocumentID  string         `json:"documentId"`
	Data        map[string]any `json:"data"`
	Permissions []string       `json:"permissions,omitempty"`
}

type updateRequest struct {
	Data map[string]any `json:"data"`
}

type incrementRequest struct {
	Value int64 `json:"value"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
}

// List returns the documents of collection matching every query.
func (c *AppwriteClient) List(ctx context.Context, collection string, queries ...Query) (ListResult, error) {
	encoded, err := EncodeAll(queries)
	if err != nil {
		return ListResult{}, err
	}
	params := url.Values{}
	for _, q := range encoded {
		params.Add("queries[]", q)
	}

	var payload listResponse
	if err := c.do(ctx, http.MethodGet, c.documentsPath(collection), params, nil, &payload); err != nil {
		return ListResult{}, fmt.Errorf("list %s: %w", collection, err)
	}
	if payload.Documents == nil {
		payload.Documents = []Document{}
	}
	return ListResult{Documents: payload.Documents, Total: payload.Total}, nil
}

// Get fetches one document by id.
func (c *AppwriteClient) Get(ctx context.Context, collection, id string) (Document, error) {
	var doc Document
	if err := c.do(ctx, http.MethodGet, c.documentPath(collection, id), nil, nil, &doc); err != nil {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Create stores a new document. An empty id is replaced by a generated one.
func (c *AppwriteClient) Create(ctx context.Context, collection, id string, data map[string]any, permissions []string) (Document, error) {
	if id == "" {
		id = xid.New().String()
	}
	body := createRequest{DocumentID: id, Data: data, Permissions: permissions}
	if body.Data == nil {
		body.Data = map[string]any{}
	}

	var doc Document
	if err := c.do(ctx, http.MethodPost, c.documentsPath(collection), nil, body, &doc); err != nil {
		return Document{}, fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Update applies a partial update; attributes missing from data are left untouched.
func (c *AppwriteClient) Update(ctx context.Context, collection, id string, data map[string]any) (Document, error) {
	var doc Document
	if err := c.do(ctx, http.MethodPatch, c.documentPath(collection, id), nil, updateRequest{Data: data}, &doc); err != nil {
		return Document{}, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Delete removes a document.
func (c *AppwriteClient) Delete(ctx context.Context, collection, id string) error {
	if err := c.do(ctx, http.MethodDelete, c.documentPath(collection, id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Increment adds by to a numeric attribute on the server. It returns
// errors.ErrUnsupported unless AtomicIncrement was enabled.
func (c *AppwriteClient) Increment(ctx context.Context, collection, id, attribute string, by int64) (Document, error) {
	if !c.atomicIncrement {
		return Document{}, errors.ErrUnsupported
	}
	path := c.documentPath(collection, id) + "/" + url.PathEscape(attribute) + "/increment"

	var doc Document
	if err := c.do(ctx, http.MethodPatch, path, nil, incrementRequest{Value: by}, &doc); err != nil {
		return Document{}, fmt.Errorf("increment %s/%s.%s: %w", collection, id, attribute, err)
	}
	return doc, nil
}

// HealthCheck asks the public health endpoint for the server version.
func (c *AppwriteClient) HealthCheck(ctx context.Context) error {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/health/version", nil, nil, &out); err != nil {
		return fmt.Errorf("appwrite health: %w", err)
	}
	return nil
}

func (c *AppwriteClient) documentsPath(collection string) string {
	return "/databases/" + url.PathEscape(c.databaseID) +
		"/collections/" + url.PathEscape(collection) + "/documents"
}

func (c *AppwriteClient) documentPath(collection, id string) string {
	return c.documentsPath(collection) + "/" + url.PathEscape(id)
}

func (c *AppwriteClient) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	endpoint, err := url.Parse(c.baseURL.String() + path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	if len(params) > 0 {
		endpoint.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setHeaders(ctx, req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remoteErr := DecodeRemoteError(resp)
		if resp.StatusCode >= 500 {
			c.logger.Warn("unexpected status", "method", method, "path", path, "status", resp.StatusCode, "type", remoteErr.Type)
		}
		return remoteErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// setHeaders attaches the project id and exactly one credential.
func (c *AppwriteClient) setHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("X-Appwrite-Project", c.projectID)
	if cred, ok := CredentialFrom(ctx); ok {
		if cred.JWT != "" {
			req.Header.Set("X-Appwrite-JWT", cred.JWT)
			return
		}
		req.AddCookie(&http.Cookie{Name: SessionCookieName(c.projectID), Value: cred.Session})
		return
	}
	if c.apiKey != "" {
		req.Header.Set("X-Appwrite-Key", c.apiKey)
	}
}

// SessionCookieName is the cookie Appwrite reads a session secret from.
func SessionCookieName(projectID string) string {
	return "a_session_" + strings.ToLower(projectID)
}

// DecodeRemoteError reads an Appwrite error body from a non-2xx response.
func DecodeRemoteError(resp *http.Response) *RemoteError {
	remote := &RemoteError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		remote.Code = payload.Code
		remote.Type = payload.Type
		remote.Message = payload.Message
		return remote
	}
	remote.Message = strings.TrimSpace(string(raw))
	if remote.Message == "" {
		remote.Message = http.StatusText(resp.StatusCode)
	}
	return remote
}

// ABOUTME: Authenticated request pipeline: the only path from tool handlers to the platform.
// ABOUTME: Injects bearer or API-key auth and survives exactly one 401 per call.

package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	// DefaultRequestTimeout bounds each business call.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultAPIKeyHeader carries the static key in API-key mode.
	DefaultAPIKeyHeader = "X-API-Key"
	// MaxResponseBodySize caps how much of a platform response is read (10MB).
	MaxResponseBodySize = 10 << 20
)

// ErrBaseURLRequired is returned by NewClient when no base URL is configured.
var ErrBaseURLRequired = errors.New("platform base URL is required")

// Config configures a Client. Everything except Credentials is shared by a Factory.
type Config struct {
	BaseURL        string
	Credentials    Credentials
	HTTPClient     *http.Client
	AuthTimeout    time.Duration
	RequestTimeout time.Duration
	APIKeyHeader   string
	// Authenticator overrides the HTTP identity client.
	Authenticator Authenticator
	Now           func() time.Time
	Logger        *slog.Logger
}

// Client is one authenticated pipeline bound to one credential set.
// It owns its token store and gate; nothing is shared between clients.
type Client struct {
	baseURL      string
	creds        Credentials
	mode         Mode
	apiKeyHeader string
	httpClient   *http.Client
	timeout      time.Duration
	logger       *slog.Logger

	store *TokenStore
	gate  *Gate
}

// NewClient creates a pipeline for cfg.Credentials. Missing credentials are not
// an error here; they surface as ErrAuthConfig on the first OAuth call.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrBaseURLRequired
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid platform base URL %q", cfg.BaseURL)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	header := cfg.APIKeyHeader
	if header == "" {
		header = DefaultAPIKeyHeader
	}

	auth := cfg.Authenticator
	if auth == nil {
		auth = NewIdentityClient(IdentityConfig{
			BaseURL:    base,
			HTTPClient: httpClient,
			Timeout:    cfg.AuthTimeout,
			Now:        cfg.Now,
		})
	}

	store := &TokenStore{}
	c := &Client{
		baseURL:      base,
		creds:        cfg.Credentials,
		mode:         cfg.Credentials.Mode(),
		apiKeyHeader: header,
		httpClient:   httpClient,
		timeout:      timeout,
		logger:       logger.With("component", "platform", "auth_mode", cfg.Credentials.Mode().String()),
		store:        store,
	}
	c.gate = NewGate(store, auth, cfg.Credentials, cfg.Now, c.logger)
	return c, nil
}

// Mode returns the authentication mode selected at construction.
func (c *Client) Mode() Mode { return c.mode }

// Get issues a GET with optional query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPost, path, nil, body)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPut, path, nil, body)
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPatch, path, nil, body)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do runs one logical platform call. In OAuth mode a 401 triggers one refresh
// (or, if that fails, one full authentication) and one retry; nothing else is retried.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, newError(KindBusiness, method+" "+path, 0, "encoding request body", err)
	}

	if c.mode == ModeAPIKey {
		return c.send(ctx, method, path, query, payload, c.authorizeAPIKey)
	}

	pair, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	result, err := c.send(ctx, method, path, query, payload, bearer(pair.AccessToken))
	if err == nil || !IsUnauthorized(err) {
		return result, err
	}

	c.logger.Info("platform rejected token, refreshing", "method", method, "path", path)
	if rerr := c.gate.Refresh(ctx, pair); rerr != nil {
		c.logger.Info("falling back to full authentication", "method", method, "path", path, "reason", rerr)
		if aerr := c.gate.Ensure(ctx); aerr != nil {
			return nil, aerr
		}
	}

	next, ok := c.store.Get()
	if !ok {
		return nil, err
	}
	return c.send(ctx, method, path, query, payload, bearer(next.AccessToken))
}

// token returns a fresh pair. A concurrent failed refresh may clear the store
// after Ensure returns, so an empty store gets one more Ensure.
func (c *Client) token(ctx context.Context) (TokenPair, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if err := c.gate.Ensure(ctx); err != nil {
			return TokenPair{}, err
		}
		if pair, ok := c.store.Get(); ok {
			return pair, nil
		}
	}
	return TokenPair{}, newError(KindAuthRequest, "", 0, "no token available after authentication", nil)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte, authorize func(*http.Request)) (json.RawMessage, error) {
	op := method + " " + path

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, newError(KindBusiness, op, 0, "building request", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	authorize(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newNetworkError(op, err)
	}
	defer resp.Body.Close()

	data, tooLarge, err := readLimited(resp.Body)
	if err != nil {
		return nil, newNetworkError(op, err)
	}

	c.logger.Debug("platform call",
		"method", method,
		"path", path,
		"status_code", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(KindBusiness, op, resp.StatusCode, platformMessage(data, resp.Status), nil)
	}
	if tooLarge {
		return nil, newError(KindBusiness, op, 0, "response too large", nil)
	}
	return normalizeBody(data), nil
}

// readLimited reads up to MaxResponseBodySize bytes and reports whether the body was longer.
func readLimited(r io.Reader) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxResponseBodySize+1))
	if err != nil {
		return nil, false, err
	}
	if len(data) > MaxResponseBodySize {
		return data[:MaxResponseBodySize], true, nil
	}
	return data, false, nil
}

func (c *Client) authorizeAPIKey(req *http.Request) {
	req.Header.Set(c.apiKeyHeader, c.creds.APIKey)
}

func bearer(token string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// normalizeBody turns empty bodies into JSON null and plain text into a JSON string.
func normalizeBody(data []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if !json.Valid(trimmed) {
		quoted, _ := json.Marshal(string(trimmed))
		return quoted
	}
	return trimmed
}

// platformMessage extracts a human-readable message from an error body.
func platformMessage(data []byte, fallback string) string {
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
		Detail  string          `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if len(body.Error) > 0 {
			var s string
			if json.Unmarshal(body.Error, &s) == nil && s != "" {
				return s
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" && len(text) <= 512 && !strings.HasPrefix(text, "{") {
		return text
	}
	return fallback
}

// Factory builds clients that share transport settings but not token state.
type Factory struct {
	cfg Config
}

// NewFactory creates a Factory from cfg; cfg.Credentials is ignored.
func NewFactory(cfg Config) *Factory {
	cfg.Credentials = Credentials{}
	return &Factory{cfg: cfg}
}

// New creates a fresh client for creds.
func (f *Factory) New(creds Credentials) (*Client, error) {
	cfg := f.cfg
	cfg.Credentials = creds
	return NewClient(cfg)
}

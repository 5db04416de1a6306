// ABOUTME: Authenticator performing the credential exchange and refresh calls.
// ABOUTME: Computes new token pairs but never installs them; the gate does that.

package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Identity endpoint paths, relative to the platform base URL.
const (
	AuthPath    = "/api/v1/auth"
	RefreshPath = "/api/v1/auth/refreshAccessToken"
)

// DefaultAuthTimeout bounds each identity call.
const DefaultAuthTimeout = 10 * time.Second

// Mode is the authentication mode of a client, fixed at construction.
type Mode int

const (
	ModeOAuth Mode = iota
	ModeAPIKey
)

func (m Mode) String() string {
	if m == ModeAPIKey {
		return "api_key"
	}
	return "oauth"
}

// Credentials identify one tenant of the platform.
// When APIKey is set the client runs in API-key mode and the OAuth pair is ignored.
type Credentials struct {
	ClientID     string
	ClientSecret string
	APIKey       string
}

// Mode reports which authentication mode these credentials select.
func (c Credentials) Mode() Mode {
	if c.APIKey != "" {
		return ModeAPIKey
	}
	return ModeOAuth
}

// HasOAuth reports whether both halves of the client-credentials pair are present.
func (c Credentials) HasOAuth() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

// Authenticator produces token pairs from the identity endpoint.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (TokenPair, error)
	Refresh(ctx context.Context, current TokenPair) (TokenPair, error)
}

// IdentityConfig configures an IdentityClient.
type IdentityConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Now        func() time.Time
}

// IdentityClient implements Authenticator over HTTP.
type IdentityClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

// NewIdentityClient creates an IdentityClient from cfg, filling defaults.
func NewIdentityClient(cfg IdentityConfig) *IdentityClient {
	c := &IdentityClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		timeout:    cfg.Timeout,
		now:        cfg.Now,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.timeout <= 0 {
		c.timeout = DefaultAuthTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

type authRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Authenticate exchanges client credentials for a new token pair.
func (c *IdentityClient) Authenticate(ctx context.Context, creds Credentials) (TokenPair, error) {
	if !creds.HasOAuth() {
		return TokenPair{}, newError(KindAuthConfig, http.MethodPost+" "+AuthPath, 0,
			"client id and client secret are required", nil)
	}
	return c.exchange(ctx, AuthPath, authRequest{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	})
}

// Refresh trades the refresh token of current for a new pair.
// A rejected refresh is returned as-is; falling back to Authenticate is the caller's job.
func (c *IdentityClient) Refresh(ctx context.Context, current TokenPair) (TokenPair, error) {
	if current.RefreshToken == "" {
		return TokenPair{}, newError(KindAuthRequest, http.MethodPost+" "+RefreshPath, 0,
			"no refresh token held", nil)
	}
	return c.exchange(ctx, RefreshPath, refreshRequest{RefreshToken: current.RefreshToken})
}

func (c *IdentityClient) exchange(ctx context.Context, path string, payload any) (TokenPair, error) {
	op := http.MethodPost + " " + path

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return TokenPair{}, newError(KindAuthRequest, op, 0, "encoding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return TokenPair{}, newError(KindAuthRequest, op, 0, "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TokenPair{}, newError(KindAuthRequest, op, 0, describeNetworkFailure(err), err)
	}
	defer resp.Body.Close()

	data, tooLarge, err := readLimited(resp.Body)
	if err != nil {
		return TokenPair{}, newError(KindAuthRequest, op, resp.StatusCode, "reading response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TokenPair{}, newError(KindAuthRequest, op, resp.StatusCode,
			platformMessage(data, resp.Status), nil)
	}

	if tooLarge {
		return TokenPair{}, newError(KindAuthRequest, op, resp.StatusCode, "token response too large", nil)
	}

	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return TokenPair{}, newError(KindAuthRequest, op, resp.StatusCode, "malformed token response", err)
	}
	if tr.Token == "" {
		return TokenPair{}, newError(KindAuthRequest, op, resp.StatusCode, "token response has no token", nil)
	}
	if tr.ExpiresIn <= 0 {
		return TokenPair{}, newError(KindAuthRequest, op, resp.StatusCode, "token response has no expiry", nil)
	}

	return TokenPair{
		AccessToken:  tr.Token,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    time.Duration(tr.ExpiresIn) * time.Second,
		ObtainedAt:   c.now(),
	}, nil
}

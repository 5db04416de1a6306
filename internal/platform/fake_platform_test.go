// ABOUTME: Fake platform server for client tests.
// ABOUTME: Counts identity and business calls and scripts their responses.

package platform

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakePlatform struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	authCalls     int
	refreshCalls  int
	businessCalls int
	authBodies    []map[string]string
	refreshBodies []map[string]string
	authHeaders   []string
	apiKeyHeaders []string

	authStatus    int    // non-zero fails the credential exchange
	refreshStatus int    // non-zero fails the refresh call
	businessQueue []int  // statuses returned by successive business calls; 200 once empty
	rejectToken   string // business calls carrying this bearer get 401
	expiresIn     int64
	tokenSeq      int
	authHold      chan struct{} // when set, the credential exchange blocks until closed
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	f := &fakePlatform{t: t, expiresIn: 3600}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePlatform) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case AuthPath:
		f.handleAuth(w, r)
	case RefreshPath:
		f.handleRefresh(w, r)
	default:
		f.handleBusiness(w, r)
	}
}

func (f *fakePlatform) handleAuth(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.authCalls++
	f.authBodies = append(f.authBodies, body)
	hold := f.authHold
	f.mu.Unlock()

	if hold != nil {
		<-hold
	}

	f.mu.Lock()
	status := f.authStatus
	f.tokenSeq++
	seq := f.tokenSeq
	expires := f.expiresIn
	f.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"message": "invalid client credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        fmt.Sprintf("access-%d", seq),
		"refreshToken": fmt.Sprintf("refresh-%d", seq),
		"expiresIn":    expires,
	})
}

func (f *fakePlatform) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.refreshCalls++
	f.refreshBodies = append(f.refreshBodies, body)
	status := f.refreshStatus
	f.tokenSeq++
	seq := f.tokenSeq
	expires := f.expiresIn
	f.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"message": "refresh token revoked"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        fmt.Sprintf("refreshed-%d", seq),
		"refreshToken": fmt.Sprintf("refresh-%d", seq),
		"expiresIn":    expires,
	})
}

func (f *fakePlatform) handleBusiness(w http.ResponseWriter, r *http.Request) {
	payload, _ := io.ReadAll(r.Body)
	authz := r.Header.Get("Authorization")

	f.mu.Lock()
	f.businessCalls++
	f.authHeaders = append(f.authHeaders, authz)
	f.apiKeyHeaders = append(f.apiKeyHeaders, r.Header.Get(DefaultAPIKeyHeader))
	status := http.StatusOK
	if len(f.businessQueue) > 0 {
		status = f.businessQueue[0]
		f.businessQueue = f.businessQueue[1:]
	}
	if f.rejectToken != "" && authz == "Bearer "+f.rejectToken {
		status = http.StatusUnauthorized
	}
	f.mu.Unlock()

	if status != http.StatusOK {
		writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"method":        r.Method,
		"path":          r.URL.Path,
		"query":         r.URL.RawQuery,
		"authorization": authz,
		"body":          json.RawMessage(nonEmpty(payload)),
	})
}

func (f *fakePlatform) counts() (auth, refresh, business int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authCalls, f.refreshCalls, f.businessCalls
}

func (f *fakePlatform) authRequests() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.authBodies...)
}

func (f *fakePlatform) refreshRequests() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.refreshBodies...)
}

func (f *fakePlatform) apiKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.apiKeyHeaders...)
}

func (f *fakePlatform) bearers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authHeaders...)
}

func (f *fakePlatform) client(t *testing.T, creds Credentials, now func() time.Time) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:     f.server.URL,
		Credentials: creds,
		HTTPClient:  f.server.Client(),
		Now:         now,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var oauthCreds = Credentials{ClientID: "client-1", ClientSecret: "secret-1"}

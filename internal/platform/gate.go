// ABOUTME: Authentication gate serialising authenticate and refresh flows per client.
// ABOUTME: One flow runs at a time; concurrent callers block on its completion channel.

package platform

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// errNoTokenHeld is returned by Gate.Refresh when the store was cleared by another flow.
var errNoTokenHeld = errors.New("no token held")

// Gate coordinates token acquisition for one client.
//
// A failed flow is not broadcast: callers that were waiting on it wake up,
// find no valid token, and start their own flow one at a time.
type Gate struct {
	store  *TokenStore
	auth   Authenticator
	creds  Credentials
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	inflight chan struct{} // non-nil while a flow runs; closed when it ends
}

// NewGate creates a gate installing tokens from auth into store.
func NewGate(store *TokenStore, auth Authenticator, creds Credentials, now func() time.Time, logger *slog.Logger) *Gate {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:  store,
		auth:   auth,
		creds:  creds,
		now:    now,
		logger: logger,
	}
}

// Ensure returns once the store holds a fresh token, authenticating if needed.
func (g *Gate) Ensure(ctx context.Context) error {
	for {
		g.mu.Lock()
		if done := g.inflight; done != nil {
			g.mu.Unlock()
			if err := wait(ctx, done); err != nil {
				return err
			}
			continue
		}

		if !g.store.IsExpired(g.now()) {
			g.mu.Unlock()
			return nil
		}

		if !g.creds.HasOAuth() {
			g.mu.Unlock()
			return newError(KindAuthConfig, "", 0, "client id and client secret are required", nil)
		}

		done := g.acquireLocked()
		g.mu.Unlock()

		return g.authenticate(ctx, done)
	}
}

func (g *Gate) authenticate(ctx context.Context, done chan struct{}) error {
	defer g.release(done)

	g.logger.Debug("authenticating with platform", "client_id", g.creds.ClientID)
	pair, err := g.auth.Authenticate(ctx, g.creds)
	if err != nil {
		g.logger.Warn("platform authentication failed", "client_id", g.creds.ClientID, "error", err)
		return err
	}
	g.store.Set(pair)
	g.warnShortLifetime(pair)
	g.logger.Debug("platform token installed", "expires_at", pair.ExpiresAt())
	return nil
}

// Refresh replaces stale with a refreshed pair through the gate.
// If the held access token no longer matches stale, another caller already
// replaced it and Refresh returns without a network call. On refresh failure
// the store is cleared so the next Ensure authenticates from scratch.
func (g *Gate) Refresh(ctx context.Context, stale TokenPair) error {
	for {
		g.mu.Lock()
		if done := g.inflight; done != nil {
			g.mu.Unlock()
			if err := wait(ctx, done); err != nil {
				return err
			}
			continue
		}

		current, ok := g.store.Get()
		if !ok {
			g.mu.Unlock()
			return errNoTokenHeld
		}
		if current.AccessToken != stale.AccessToken {
			g.mu.Unlock()
			return nil
		}

		done := g.acquireLocked()
		g.mu.Unlock()

		return g.refresh(ctx, done, current)
	}
}

func (g *Gate) refresh(ctx context.Context, done chan struct{}, current TokenPair) error {
	defer g.release(done)

	g.logger.Debug("refreshing platform token", "client_id", g.creds.ClientID)
	pair, err := g.auth.Refresh(ctx, current)
	if err != nil {
		g.store.Clear()
		g.logger.Warn("platform token refresh failed", "client_id", g.creds.ClientID, "error", err)
		return err
	}
	g.store.Set(pair)
	g.warnShortLifetime(pair)
	g.logger.Debug("platform token refreshed", "expires_at", pair.ExpiresAt())
	return nil
}

// warnShortLifetime flags tokens that are stale on arrival; every call will re-authenticate.
func (g *Gate) warnShortLifetime(pair TokenPair) {
	if pair.ExpiresIn <= ExpiryMargin {
		g.logger.Warn("platform token lifetime is within the expiry margin",
			"expires_in", pair.ExpiresIn,
			"expiry_margin", ExpiryMargin,
		)
	}
}

// acquireLocked marks a flow in flight. Must be called with mu held.
func (g *Gate) acquireLocked() chan struct{} {
	done := make(chan struct{})
	g.inflight = done
	return done
}

func (g *Gate) release(done chan struct{}) {
	g.mu.Lock()
	if g.inflight == done {
		g.inflight = nil
	}
	g.mu.Unlock()
	close(done)
}

// InFlight reports whether an authenticate or refresh flow is running.
func (g *Gate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight != nil
}

func wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for platform authentication")
	}
}

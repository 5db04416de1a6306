// ABOUTME: Token pair and the per-client store that holds zero or one of them.
// ABOUTME: Expiry includes a five minute margin so tokens never lapse mid-request.

package platform

import (
	"sync"
	"time"
)

// ExpiryMargin is subtracted from a token's lifetime when judging freshness.
const ExpiryMargin = 5 * time.Minute

// TokenPair is the result of a successful authenticate or refresh call.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	ObtainedAt   time.Time
}

// ExpiresAt is the absolute instant the platform stops accepting the access token.
func (p TokenPair) ExpiresAt() time.Time {
	return p.ObtainedAt.Add(p.ExpiresIn)
}

// Fresh reports whether now is strictly before ExpiresAt minus ExpiryMargin.
func (p TokenPair) Fresh(now time.Time) bool {
	return now.Before(p.ExpiresAt().Add(-ExpiryMargin))
}

// TokenStore holds the current token pair for one client.
type TokenStore struct {
	mu   sync.RWMutex
	pair *TokenPair
}

// Get returns a copy of the held pair.
func (s *TokenStore) Get() (TokenPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pair == nil {
		return TokenPair{}, false
	}
	return *s.pair, true
}

// IsExpired is true when no pair is held or the held pair is outside its freshness window.
func (s *TokenStore) IsExpired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair == nil || !s.pair.Fresh(now)
}

// Set replaces the held pair wholesale.
func (s *TokenStore) Set(p TokenPair) {
	s.mu.Lock()
	s.pair = &p
	s.mu.Unlock()
}

// Clear drops the held pair, forcing the next caller to authenticate.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	s.pair = nil
	s.mu.Unlock()
}

// ABOUTME: Tests for the JWT HTTP middleware
// ABOUTME: Verifies header parsing, rejection responses, and principal propagation

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAuthMiddleware(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	valid, err := verifier.Generate("ops-bot", []string{"list_maps"}, time.Hour)
	require.NoError(t, err)
	expired, err := verifier.Generate("ops-bot", nil, -time.Hour)
	require.NoError(t, err)

	var seen *Principal
	handler := HTTPAuthMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid", "Bearer " + valid, http.StatusNoContent, ""},
		{"missing", "", http.StatusUnauthorized, "missing authorization header"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "invalid authorization header format"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "empty token"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/tools", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
				assert.Nil(t, seen, "handler must not run")
				return
			}
			require.NotNil(t, seen)
			assert.Equal(t, "ops-bot", seen.Subject)
			assert.Equal(t, []string{"list_maps"}, seen.Tools)
		})
	}
}

func TestFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, FromContext(req.Context()))
}

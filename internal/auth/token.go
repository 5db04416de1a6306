// ABOUTME: JWT token verification for authenticating REST shim requests
// ABOUTME: Uses HS256 signing with configurable secret and an optional tool allowlist claim

package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Principal is the verified identity behind a bearer token.
type Principal struct {
	Subject string
	// Tools limits which tools the principal may call. Empty means all.
	Tools []string
}

// Allows reports whether the principal may call the named tool.
func (p *Principal) Allows(tool string) bool {
	return len(p.Tools) == 0 || slices.Contains(p.Tools, tool)
}

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (*Principal, error)
}

type claims struct {
	Tools []string `json:"tools,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret, now: time.Now}
}

// Verify validates the token and extracts the principal from the "sub" and "tools" claims
func (v *JWTVerifier) Verify(tokenString string) (*Principal, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return &Principal{Subject: c.Subject, Tools: c.Tools}, nil
}

// Generate creates a new JWT token for subject with expiration.
// A non-empty tools list restricts the token to those tools.
func (v *JWTVerifier) Generate(subject string, tools []string, expiresIn time.Duration) (string, error) {
	now := v.now()
	c := claims{
		Tools: tools,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(v.secret)
}

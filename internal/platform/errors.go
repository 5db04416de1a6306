// ABOUTME: Typed error taxonomy for the platform client.
// ABOUTME: Retry decisions match on Kind and StatusCode, never on message text.

package platform

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
)

// Kind classifies a platform failure.
type Kind int

const (
	// KindAuthConfig means credentials were absent. Never retried.
	KindAuthConfig Kind = iota + 1
	// KindAuthRequest means the identity or refresh endpoint rejected the call or was unreachable.
	KindAuthRequest
	// KindBusiness means a business call returned a non-2xx status.
	KindBusiness
	// KindNetwork means a business call failed below HTTP (timeout, DNS, refused).
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindAuthConfig:
		return "auth_config"
	case KindAuthRequest:
		return "auth_request"
	case KindBusiness:
		return "business_request"
	case KindNetwork:
		return "transport_network"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against a *Error of the corresponding Kind.
var (
	ErrAuthConfig       = errors.New("platform credentials not configured")
	ErrAuthRequest      = errors.New("platform authentication failed")
	ErrBusinessRequest  = errors.New("platform request failed")
	ErrTransportNetwork = errors.New("platform unreachable")
)

// Error is the single error type returned by the client.
type Error struct {
	Kind       Kind
	Op         string // e.g. "GET /api/v1/map"
	StatusCode int    // 0 when no HTTP response was received
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(sentinelFor(e.Kind).Error())
	if e.StatusCode != 0 {
		b.WriteString(" (status ")
		b.WriteString(strconv.Itoa(e.StatusCode))
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets the standard library errors.Is match the Kind sentinels.
func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

func sentinelFor(k Kind) error {
	switch k {
	case KindAuthConfig:
		return ErrAuthConfig
	case KindAuthRequest:
		return ErrAuthRequest
	case KindBusiness:
		return ErrBusinessRequest
	default:
		return ErrTransportNetwork
	}
}

// newError builds an *Error whose cause chain always carries the Kind sentinel,
// either directly or as a cockroachdb mark on the underlying cause.
func newError(kind Kind, op string, status int, msg string, cause error) *Error {
	sentinel := sentinelFor(kind)
	wrapped := sentinel
	if cause != nil {
		wrapped = errors.Mark(cause, sentinel)
	}
	return &Error{
		Kind:       kind,
		Op:         op,
		StatusCode: status,
		Message:    msg,
		Err:        wrapped,
	}
}

func newNetworkError(op string, cause error) *Error {
	return newError(KindNetwork, op, 0, describeNetworkFailure(cause), cause)
}

// describeNetworkFailure gives each connection-level failure subtype its own message.
func describeNetworkFailure(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		return "DNS lookup failed for " + dnsErr.Name
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request canceled"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection reset by peer"
	default:
		return "network failure: " + err.Error()
	}
}

// IsUnauthorized reports whether err is a business call rejected with HTTP 401.
func IsUnauthorized(err error) bool {
	var perr *Error
	if !errors.As(err, &perr) {
		return false
	}
	return perr.Kind == KindBusiness && perr.StatusCode == http.StatusUnauthorized
}

// KindOf returns the Kind of err, or 0 when err did not come from this package.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return 0
}

// StatusCode returns the platform HTTP status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var perr *Error
	if errors.As(err, &perr) && perr.StatusCode != 0 {
		return perr.StatusCode, true
	}
	return 0, false
}

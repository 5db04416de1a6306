// ABOUTME: Store interface and data types for mapgate persistence
// ABOUTME: Defines the ToolCall audit record and the ToolCallStore interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Transport names recorded with each tool call.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportREST  = "rest"
)

// ToolCall is one audited tool invocation.
type ToolCall struct {
	ID        string        `json:"id"`                  // UUID v4, generated if empty
	RequestID string        `json:"request_id"`          // correlation id shared with logs
	Transport string        `json:"transport"`           // stdio, http, rest
	ClientID  string        `json:"client_id,omitempty"` // platform client id; empty in API-key mode. Never the secret.
	ToolName  string        `json:"tool_name"`
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"` // error text when !OK
	Duration  time.Duration `json:"duration_ns"`
	CreatedAt time.Time     `json:"created_at"` // generated if zero
}

// ToolCallFilter specifies filtering options for listing tool calls.
type ToolCallFilter struct {
	ToolName   string     // exact match when set
	Transport  string     // exact match when set
	Since      *time.Time // calls at or after this time
	FailedOnly bool       // only calls with ok = 0
	Limit      int        // max results (default 50, max 1000)
}

// ToolStat aggregates calls of one tool.
type ToolStat struct {
	ToolName    string        `json:"tool_name"`
	Calls       int           `json:"calls"`
	Failures    int           `json:"failures"`
	AvgDuration time.Duration `json:"avg_duration_ns"`
}

// ToolCallStore persists tool call audit records.
type ToolCallStore interface {
	RecordToolCall(ctx context.Context, call *ToolCall) error
	ListToolCalls(ctx context.Context, filter ToolCallFilter) ([]ToolCall, error)
	ToolCallStats(ctx context.Context) ([]ToolStat, error)
	Close() error
}

// normalizeLimit applies default (50) and cap (1000) to a list limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

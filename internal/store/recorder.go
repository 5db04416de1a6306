// ABOUTME: Best-effort recorder that writes tool calls to a ToolCallStore.
// ABOUTME: Write failures are logged and swallowed so auditing never fails a tool call.

package store

import (
	"context"
	"log/slog"
	"time"
)

// recordTimeout bounds one audit write.
const recordTimeout = 2 * time.Second

// CallRecorder receives one record per tool invocation.
type CallRecorder interface {
	Record(ctx context.Context, call ToolCall)
}

// Recorder is a CallRecorder backed by a ToolCallStore.
// A nil store makes every Record a no-op.
type Recorder struct {
	store  ToolCallStore
	logger *slog.Logger
}

var _ CallRecorder = (*Recorder)(nil)

// NewRecorder creates a Recorder writing to s.
func NewRecorder(s ToolCallStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, logger: logger.With("component", "audit")}
}

// Record writes call, detached from ctx cancellation. It never returns an error.
func (r *Recorder) Record(ctx context.Context, call ToolCall) {
	if r == nil || r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := r.store.RecordToolCall(ctx, &call); err != nil {
		r.logger.Warn("failed to record tool call",
			"tool_name", call.ToolName,
			"request_id", call.RequestID,
			"error", err,
		)
	}
}

// ABOUTME: Tests for the best-effort audit recorder
// ABOUTME: Verifies writes land in the store and failures are swallowed

package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Record(t *testing.T) {
	mock := NewMockStore()
	r := NewRecorder(mock, nil)

	r.Record(context.Background(), ToolCall{Transport: TransportStdio, ToolName: "list_maps", OK: true})

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "list_maps", calls[0].ToolName)
	assert.NotEmpty(t, calls[0].ID)
}

func TestRecorder_SurvivesCanceledContext(t *testing.T) {
	mock := NewMockStore()
	r := NewRecorder(mock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, ToolCall{Transport: TransportHTTP, ToolName: "get_map"})

	assert.Len(t, mock.Calls(), 1)
}

func TestRecorder_SwallowsStoreErrors(t *testing.T) {
	mock := NewMockStore()
	mock.Err = errors.New("disk full")

	var logs bytes.Buffer
	r := NewRecorder(mock, slog.New(slog.NewTextHandler(&logs, nil)))

	assert.NotPanics(t, func() {
		r.Record(context.Background(), ToolCall{ToolName: "delete_map", RequestID: "req-1"})
	})
	assert.Contains(t, logs.String(), "failed to record tool call")
	assert.Contains(t, logs.String(), "disk full")
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() { r.Record(context.Background(), ToolCall{}) })

	assert.NotPanics(t, func() {
		NewRecorder(nil, nil).Record(context.Background(), ToolCall{})
	})
}

func TestRecorder_ClosedSQLiteStore(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	var logs bytes.Buffer
	r := NewRecorder(s, slog.New(slog.NewTextHandler(&logs, nil)))
	r.Record(context.Background(), ToolCall{Transport: TransportStdio, ToolName: "list_maps"})

	assert.Contains(t, logs.String(), "failed to record tool call")
}

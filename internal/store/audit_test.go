// ABOUTME: Tests for tool call audit persistence
// ABOUTME: Covers recording, filtering, ordering, limits, and per-tool stats

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toolCallStores runs the same assertions against both implementations.
func toolCallStores(t *testing.T) map[string]ToolCallStore {
	return map[string]ToolCallStore{
		"sqlite": newTestStore(t),
		"mock":   NewMockStore(),
	}
}

func seedCalls(t *testing.T, s ToolCallStore, base time.Time) {
	t.Helper()
	ctx := context.Background()
	seed := []ToolCall{
		{Transport: TransportStdio, ToolName: "list_maps", OK: true, Duration: 10 * time.Millisecond},
		{Transport: TransportHTTP, ToolName: "get_map", OK: false, Error: "platform request failed (status 404)", Duration: 30 * time.Millisecond},
		{Transport: TransportHTTP, ToolName: "list_maps", OK: true, Duration: 20 * time.Millisecond},
		{Transport: TransportREST, ToolName: "create_post", OK: true, Duration: 40 * time.Millisecond, ClientID: "client-a"},
	}
	for i := range seed {
		seed[i].CreatedAt = base.Add(time.Duration(i) * time.Second)
		seed[i].RequestID = fmt.Sprintf("req-%d", i)
		require.NoError(t, s.RecordToolCall(ctx, &seed[i]))
		assert.NotEmpty(t, seed[i].ID, "id generated")
	}
}

func TestRecordAndListToolCalls(t *testing.T) {
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	for name, s := range toolCallStores(t) {
		t.Run(name, func(t *testing.T) {
			seedCalls(t, s, base)
			ctx := context.Background()

			all, err := s.ListToolCalls(ctx, ToolCallFilter{})
			require.NoError(t, err)
			require.Len(t, all, 4)
			assert.Equal(t, "create_post", all[0].ToolName, "newest first")
			assert.Equal(t, "client-a", all[0].ClientID)
			assert.Equal(t, "req-3", all[0].RequestID)
			assert.Equal(t, 40*time.Millisecond, all[0].Duration)
			assert.True(t, all[0].CreatedAt.Equal(base.Add(3*time.Second)))

			failed, err := s.ListToolCalls(ctx, ToolCallFilter{FailedOnly: true})
			require.NoError(t, err)
			require.Len(t, failed, 1)
			assert.Equal(t, "get_map", failed[0].ToolName)
			assert.False(t, failed[0].OK)
			assert.Contains(t, failed[0].Error, "404")

			byTool, err := s.ListToolCalls(ctx, ToolCallFilter{ToolName: "list_maps"})
			require.NoError(t, err)
			assert.Len(t, byTool, 2)

			byTransport, err := s.ListToolCalls(ctx, ToolCallFilter{Transport: TransportHTTP})
			require.NoError(t, err)
			assert.Len(t, byTransport, 2)

			since := base.Add(2 * time.Second)
			recent, err := s.ListToolCalls(ctx, ToolCallFilter{Since: &since})
			require.NoError(t, err)
			assert.Len(t, recent, 2)

			limited, err := s.ListToolCalls(ctx, ToolCallFilter{Limit: 1})
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestToolCallStats(t *testing.T) {
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	for name, s := range toolCallStores(t) {
		t.Run(name, func(t *testing.T) {
			seedCalls(t, s, base)

			stats, err := s.ToolCallStats(context.Background())
			require.NoError(t, err)
			require.Len(t, stats, 3)

			assert.Equal(t, "list_maps", stats[0].ToolName)
			assert.Equal(t, 2, stats[0].Calls)
			assert.Equal(t, 0, stats[0].Failures)
			assert.Equal(t, 15*time.Millisecond, stats[0].AvgDuration)

			assert.Equal(t, "create_post", stats[1].ToolName, "ties ordered by name")
			assert.Equal(t, "get_map", stats[2].ToolName)
			assert.Equal(t, 1, stats[2].Failures)
		})
	}
}

func TestListToolCalls_SubSecondOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordToolCall(ctx, &ToolCall{Transport: TransportStdio, ToolName: "a", OK: true, CreatedAt: base}))
	require.NoError(t, s.RecordToolCall(ctx, &ToolCall{Transport: TransportStdio, ToolName: "b", OK: true, CreatedAt: base.Add(500 * time.Millisecond)}))

	calls, err := s.ListToolCalls(ctx, ToolCallFilter{})
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "b", calls[0].ToolName)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 50, normalizeLimit(0))
	assert.Equal(t, 50, normalizeLimit(-3))
	assert.Equal(t, 7, normalizeLimit(7))
	assert.Equal(t, 1000, normalizeLimit(5000))
}

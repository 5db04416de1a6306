// ABOUTME: Mock ToolCallStore implementation for testing
// ABOUTME: Allows transport tests to assert on audit records without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory ToolCallStore implementation for testing.
type MockStore struct {
	mu    sync.RWMutex
	calls []ToolCall

	// Err, when set, is returned by every write.
	Err error
}

var _ ToolCallStore = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// RecordToolCall stores a copy of c.
func (m *MockStore) RecordToolCall(_ context.Context, c *ToolCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.calls = append(m.calls, *c)
	return nil
}

// ListToolCalls filters the stored calls, newest first.
func (m *MockStore) ListToolCalls(_ context.Context, f ToolCallFilter) ([]ToolCall, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ToolCall
	for _, c := range m.calls {
		if f.ToolName != "" && c.ToolName != f.ToolName {
			continue
		}
		if f.Transport != "" && c.Transport != f.Transport {
			continue
		}
		if f.Since != nil && c.CreatedAt.Before(*f.Since) {
			continue
		}
		if f.FailedOnly && c.OK {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit := normalizeLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ToolCallStats aggregates the stored calls per tool.
func (m *MockStore) ToolCallStats(_ context.Context) ([]ToolStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byTool := make(map[string]*ToolStat)
	totals := make(map[string]time.Duration)
	for _, c := range m.calls {
		st, ok := byTool[c.ToolName]
		if !ok {
			st = &ToolStat{ToolName: c.ToolName}
			byTool[c.ToolName] = st
		}
		st.Calls++
		if !c.OK {
			st.Failures++
		}
		totals[c.ToolName] += c.Duration
	}

	out := make([]ToolStat, 0, len(byTool))
	for name, st := range byTool {
		st.AvgDuration = totals[name] / time.Duration(st.Calls)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		return out[i].ToolName < out[j].ToolName
	})
	return out, nil
}

// Calls returns every stored call in insertion order.
func (m *MockStore) Calls() []ToolCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ToolCall(nil), m.calls...)
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

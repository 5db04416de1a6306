// ABOUTME: Tests for tool registration, lookup, and schema-validated dispatch.
// ABOUTME: Uses a recording fake API in place of the platform pipeline.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apiCall is one request recorded by fakeAPI.
type apiCall struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall
	resp  json.RawMessage
	err   error
}

func (f *fakeAPI) record(c apiCall) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeAPI) Get(_ context.Context, path string, query url.Values) (json.RawMessage, error) {
	return f.record(apiCall{Method: "GET", Path: path, Query: query})
}

func (f *fakeAPI) Post(_ context.Context, path string, body any) (json.RawMessage, error) {
	return f.record(apiCall{Method: "POST", Path: path, Body: body})
}

func (f *fakeAPI) Put(_ context.Context, path string, body any) (json.RawMessage, error) {
	return f.record(apiCall{Method: "PUT", Path: path, Body: body})
}

func (f *fakeAPI) Patch(_ context.Context, path string, body any) (json.RawMessage, error) {
	return f.record(apiCall{Method: "PATCH", Path: path, Body: body})
}

func (f *fakeAPI) Delete(_ context.Context, path string) (json.RawMessage, error) {
	return f.record(apiCall{Method: "DELETE", Path: path})
}

func (f *fakeAPI) last(t *testing.T) apiCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls, "expected a platform call")
	return f.calls[len(f.calls)-1]
}

func echoTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "echo",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"msg":{"type":"string"}},"required":["msg"]}`),
		Handler: func(_ context.Context, _ API, args json.RawMessage) (any, error) {
			return args, nil
		},
	}
}

func TestRegistry_RegisterAndList(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(echoTool("b"), echoTool("a")))
	require.NoError(t, r.Register(echoTool("c")))

	var names []string
	for _, tool := range r.List() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"b", "a", "c"}, names, "registration order is kept")

	tool, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "echo", tool.Description)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_Collision(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(echoTool("dup")))

	err := r.Register(echoTool("fresh"), echoTool("dup"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolCollision))

	_, ok := r.Get("fresh")
	assert.False(t, ok, "a failed registration adds nothing")

	err = NewRegistry(nil).Register(echoTool("x"), echoTool("x"))
	assert.True(t, errors.Is(err, ErrToolCollision))
}

func TestRegistry_RegisterRejectsBadTools(t *testing.T) {
	tests := []struct {
		name string
		tool Tool
	}{
		{"no name", Tool{Handler: echoTool("x").Handler}},
		{"no handler", Tool{Name: "x"}},
		{"bad schema", Tool{Name: "x", Handler: echoTool("x").Handler, InputSchema: json.RawMessage(`{"type":12}`)}},
		{"not json", Tool{Name: "x", Handler: echoTool("x").Handler, InputSchema: json.RawMessage(`{`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewRegistry(nil).Register(tt.tool))
		})
	}
}

func TestRegistry_Call(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(echoTool("echo")))
	api := &fakeAPI{}

	t.Run("valid arguments", func(t *testing.T) {
		out, err := r.Call(context.Background(), api, "echo", json.RawMessage(`{"msg":"hi"}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"msg":"hi"}`, string(out.(json.RawMessage)))
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := r.Call(context.Background(), api, "nope", nil)
		assert.True(t, errors.Is(err, ErrToolNotFound))
	})

	t.Run("missing required field", func(t *testing.T) {
		_, err := r.Call(context.Background(), api, "echo", json.RawMessage(`{}`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidArguments))
		assert.Contains(t, err.Error(), "msg")
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := r.Call(context.Background(), api, "echo", json.RawMessage(`{"msg":5}`))
		assert.True(t, errors.Is(err, ErrInvalidArguments))
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := r.Call(context.Background(), api, "echo", json.RawMessage(`{"msg"`))
		assert.True(t, errors.Is(err, ErrInvalidArguments))
	})

	t.Run("integer bounds", func(t *testing.T) {
		require.NoError(t, r.Register(Tool{
			Name:        "page",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"limit":{"type":"integer","minimum":1,"maximum":100}}}`),
			Handler: func(_ context.Context, _ API, args json.RawMessage) (any, error) {
				return args, nil
			},
		}))
		_, err := r.Call(context.Background(), api, "page", json.RawMessage(`{"limit":25}`))
		require.NoError(t, err)

		_, err = r.Call(context.Background(), api, "page", json.RawMessage(`{"limit":2.5}`))
		assert.True(t, errors.Is(err, ErrInvalidArguments))

		_, err = r.Call(context.Background(), api, "page", json.RawMessage(`{"limit":101}`))
		assert.True(t, errors.Is(err, ErrInvalidArguments))
	})

	t.Run("empty arguments are an empty object", func(t *testing.T) {
		require.NoError(t, r.Register(Tool{
			Name: "noargs",
			Handler: func(_ context.Context, _ API, args json.RawMessage) (any, error) {
				return string(args), nil
			},
		}))
		out, err := r.Call(context.Background(), api, "noargs", nil)
		require.NoError(t, err)
		assert.Equal(t, "{}", out)

		out, err = r.Call(context.Background(), api, "noargs", json.RawMessage("null"))
		require.NoError(t, err)
		assert.Equal(t, "{}", out)
	})
}

func TestRegistry_ConcurrentCalls(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(echoTool("echo")))
	api := &fakeAPI{}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Call(context.Background(), api, "echo", json.RawMessage(`{"msg":"x"}`))
			assert.NoError(t, err)
			_ = r.List()
		}()
	}
	wg.Wait()
}

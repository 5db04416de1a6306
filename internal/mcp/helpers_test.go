// ABOUTME: Shared fixtures for MCP handler and transport tests.
// ABOUTME: Provides a stub platform API and a small tool registry.

package mcp

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/2389/mapgate/internal/store"
	"github.com/2389/mapgate/internal/tools"
)

// stubAPI answers every platform call with resp or err.
type stubAPI struct {
	mu    sync.Mutex
	paths []string
	resp  json.RawMessage
	err   error
}

func (s *stubAPI) do(path string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubAPI) Get(_ context.Context, path string, _ url.Values) (json.RawMessage, error) {
	return s.do(path)
}

func (s *stubAPI) Post(_ context.Context, path string, _ any) (json.RawMessage, error) {
	return s.do(path)
}

func (s *stubAPI) Put(_ context.Context, path string, _ any) (json.RawMessage, error) {
	return s.do(path)
}

func (s *stubAPI) Patch(_ context.Context, path string, _ any) (json.RawMessage, error) {
	return s.do(path)
}

func (s *stubAPI) Delete(_ context.Context, path string) (json.RawMessage, error) {
	return s.do(path)
}

// testRegistry registers "echo", which returns its arguments, and "fetch",
// which GETs /things through the API.
func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(nil)
	err := reg.Register(
		tools.Tool{
			Name:        "echo",
			Description: "Echo the message back",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"msg":{"type":"string"}},"required":["msg"]}`),
			Handler: func(_ context.Context, _ tools.API, args json.RawMessage) (any, error) {
				var in struct {
					Msg string `json:"msg"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, err
				}
				return map[string]string{"msg": in.Msg}, nil
			},
		},
		tools.Tool{
			Name:        "fetch",
			Description: "Fetch things from the platform",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler: func(ctx context.Context, api tools.API, _ json.RawMessage) (any, error) {
				return api.Get(ctx, "/things", nil)
			},
		},
	)
	require.NoError(t, err)
	return reg
}

func newTestHandler(t *testing.T, rec store.CallRecorder, transport string) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerConfig{
		Registry:      testRegistry(t),
		Recorder:      rec,
		Transport:     transport,
		ServerVersion: "test",
	})
	require.NoError(t, err)
	return h
}

// rpc builds a request with a numeric id; id 0 builds a notification.
func rpc(t *testing.T, id int, method string, params any) JSONRPCRequest {
	t.Helper()
	req := JSONRPCRequest{JSONRPC: "2.0", Method: method}
	if id != 0 {
		req.ID = json.RawMessage(mustJSON(t, id))
	}
	if params != nil {
		req.Params = json.RawMessage(mustJSON(t, params))
	}
	return req
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// ABOUTME: Tests for the map, post, and action tool catalog.
// ABOUTME: Checks request mapping, schema enforcement, and markdown rendering.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T) *Registry {
	t.Helper()
	r, err := NewCatalogRegistry(nil)
	require.NoError(t, err)
	return r
}

func TestCatalog_Names(t *testing.T) {
	r := newCatalog(t)

	want := []string{
		"list_maps", "get_map", "create_map", "update_map", "delete_map",
		"list_posts", "get_post", "create_post", "update_post", "delete_post",
		"list_actions", "get_action", "create_action", "update_action", "delete_action",
	}
	var got []string
	for _, tool := range r.List() {
		got = append(got, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
		assert.True(t, json.Valid(tool.InputSchema), tool.Name)
	}
	assert.Equal(t, want, got)
}

func TestCatalog_RequestMapping(t *testing.T) {
	tests := []struct {
		tool   string
		args   string
		method string
		path   string
		query  url.Values
		body   map[string]any
	}{
		{
			tool: "list_maps", args: `{"page":2,"limit":10}`,
			method: "GET", path: "/api/v1/map",
			query: url.Values{"page": {"2"}, "limit": {"10"}},
		},
		{
			tool: "list_maps", args: `{}`,
			method: "GET", path: "/api/v1/map",
			query: url.Values{},
		},
		{
			tool: "list_posts", args: `{"mapId":"m1"}`,
			method: "GET", path: "/api/v1/post",
			query: url.Values{"mapId": {"m1"}},
		},
		{
			tool: "get_map", args: `{"id":"m 1/x"}`,
			method: "GET", path: "/api/v1/map/m%201%2Fx",
		},
		{
			tool: "create_map", args: `{"title":"Parks","zoom":12}`,
			method: "POST", path: "/api/v1/map",
			body: map[string]any{"title": "Parks", "zoom": json.Number("12")},
		},
		{
			tool: "update_action", args: `{"id":"a1","title":"Go"}`,
			method: "PUT", path: "/api/v1/action/a1",
			body: map[string]any{"title": "Go"},
		},
		{
			tool: "delete_post", args: `{"id":"p9"}`,
			method: "DELETE", path: "/api/v1/post/p9",
		},
	}

	r := newCatalog(t)
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			api := &fakeAPI{}
			out, err := r.Call(context.Background(), api, tt.tool, json.RawMessage(tt.args))
			require.NoError(t, err)
			assert.JSONEq(t, `{"ok":true}`, string(out.(json.RawMessage)))

			call := api.last(t)
			assert.Equal(t, tt.method, call.Method)
			assert.Equal(t, tt.path, call.Path)
			if tt.query != nil {
				assert.Equal(t, tt.query, call.Query)
			}
			if tt.body != nil {
				assert.Equal(t, tt.body, call.Body)
			}
		})
	}
}

func TestCatalog_SchemaEnforcement(t *testing.T) {
	tests := []struct {
		tool string
		args string
	}{
		{"get_map", `{}`},
		{"get_map", `{"id":""}`},
		{"create_map", `{"description":"no title"}`},
		{"create_map", `{"title":"x","visibility":"secret"}`},
		{"create_map", `{"title":"x","center":{"lat":91,"lng":0}}`},
		{"create_post", `{"title":"no map"}`},
		{"update_post", `{"id":"p1"}`},
		{"list_maps", `{"limit":500}`},
		{"list_maps", `{"page":0}`},
		{"create_action", `{"mapId":"m","title":"t","type":"teleport"}`},
	}

	r := newCatalog(t)
	for _, tt := range tests {
		t.Run(tt.tool+" "+tt.args, func(t *testing.T) {
			api := &fakeAPI{}
			_, err := r.Call(context.Background(), api, tt.tool, json.RawMessage(tt.args))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidArguments))
			assert.Empty(t, api.calls, "invalid arguments never reach the platform")
		})
	}
}

func TestCatalog_PostMarkdown(t *testing.T) {
	r := newCatalog(t)

	t.Run("rendered to content", func(t *testing.T) {
		api := &fakeAPI{}
		_, err := r.Call(context.Background(), api, "create_post",
			json.RawMessage(`{"mapId":"m1","title":"Hello","markdown":"# Title\n\nSome *text*"}`))
		require.NoError(t, err)

		body := api.last(t).Body.(map[string]any)
		assert.NotContains(t, body, "markdown")
		assert.Contains(t, body["content"], "<h1>Title</h1>")
		assert.Contains(t, body["content"], "<em>text</em>")
	})

	t.Run("update renders too", func(t *testing.T) {
		api := &fakeAPI{}
		_, err := r.Call(context.Background(), api, "update_post",
			json.RawMessage(`{"id":"p1","markdown":"~~gone~~"}`))
		require.NoError(t, err)

		call := api.last(t)
		assert.Equal(t, "/api/v1/post/p1", call.Path)
		assert.Contains(t, call.Body.(map[string]any)["content"], "<del>gone</del>")
	})

	t.Run("content and markdown conflict", func(t *testing.T) {
		api := &fakeAPI{}
		_, err := r.Call(context.Background(), api, "create_post",
			json.RawMessage(`{"mapId":"m1","title":"x","content":"<p>a</p>","markdown":"b"}`))
		assert.True(t, errors.Is(err, ErrInvalidArguments))
		assert.Empty(t, api.calls)
	})
}

func TestCatalog_PlatformErrorPassesThrough(t *testing.T) {
	r := newCatalog(t)
	boom := errors.New("platform said no")
	api := &fakeAPI{err: boom}

	_, err := r.Call(context.Background(), api, "get_map", json.RawMessage(`{"id":"m1"}`))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, api.calls, 1, "handlers do not retry")
}

func TestRenderMarkdown(t *testing.T) {
	html, err := RenderMarkdown("| a | b |\n|---|---|\n| 1 | 2 |\n")
	require.NoError(t, err)
	assert.Contains(t, html, "<table>")
}

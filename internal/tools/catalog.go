// ABOUTME: Map, post, and action CRUD tools against the platform REST API.
// ABOUTME: Each tool is a thin argument-to-request mapping over the API pipeline.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Platform resource collections.
const (
	MapsPath    = "/api/v1/map"
	PostsPath   = "/api/v1/post"
	ActionsPath = "/api/v1/action"
)

const latLngSchema = `{"type":"object","properties":{"lat":{"type":"number","minimum":-90,"maximum":90},"lng":{"type":"number","minimum":-180,"maximum":180}},"required":["lat","lng"]}`

// resource describes one CRUD collection on the platform.
type resource struct {
	singular string
	plural   string
	path     string
	// scoped resources belong to a map and can be listed by mapId.
	scoped bool
	// properties is the JSON object body of the create/update schema properties.
	properties string
	required   []string
	// prepare rewrites a create/update body before it is sent.
	prepare func(body map[string]any) error
}

var resources = []resource{
	{
		singular: "map",
		plural:   "maps",
		path:     MapsPath,
		properties: `"title":{"type":"string","minLength":1},` +
			`"description":{"type":"string"},` +
			`"visibility":{"type":"string","enum":["public","private","unlisted"]},` +
			`"tags":{"type":"array","items":{"type":"string"}},` +
			`"center":` + latLngSchema + `,` +
			`"zoom":{"type":"integer","minimum":0,"maximum":22}`,
		required: []string{"title"},
	},
	{
		singular: "post",
		plural:   "posts",
		path:     PostsPath,
		scoped:   true,
		properties: `"mapId":{"type":"string","minLength":1},` +
			`"title":{"type":"string","minLength":1},` +
			`"content":{"type":"string","description":"HTML body"},` +
			`"markdown":{"type":"string","description":"Markdown body, rendered to HTML content"},` +
			`"location":` + latLngSchema + `,` +
			`"imageUrl":{"type":"string"},` +
			`"tags":{"type":"array","items":{"type":"string"}}`,
		required: []string{"mapId", "title"},
		prepare:  renderPostMarkdown,
	},
	{
		singular: "action",
		plural:   "actions",
		path:     ActionsPath,
		scoped:   true,
		properties: `"mapId":{"type":"string","minLength":1},` +
			`"postId":{"type":"string"},` +
			`"title":{"type":"string","minLength":1},` +
			`"type":{"type":"string","enum":["link","navigate","call","email"]},` +
			`"url":{"type":"string"},` +
			`"description":{"type":"string"},` +
			`"order":{"type":"integer","minimum":0}`,
		required: []string{"mapId", "title"},
	},
}

// Catalog returns the full platform tool set: list, get, create, update, and
// delete for maps, posts, and actions.
func Catalog() []Tool {
	var out []Tool
	for _, res := range resources {
		out = append(out, res.tools()...)
	}
	return out
}

// NewCatalogRegistry returns a registry holding Catalog().
func NewCatalogRegistry(logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	if err := r.Register(Catalog()...); err != nil {
		return nil, err
	}
	return r, nil
}

func (res resource) tools() []Tool {
	return []Tool{
		{
			Name:        "list_" + res.plural,
			Description: "List " + res.plural + " with pagination" + res.scopeHint(),
			InputSchema: res.listSchema(),
			Handler:     res.list,
		},
		{
			Name:        "get_" + res.singular,
			Description: "Get a " + res.singular + " by id",
			InputSchema: idSchema,
			Handler:     res.get,
		},
		{
			Name:        "create_" + res.singular,
			Description: "Create a " + res.singular,
			InputSchema: res.createSchema(),
			Handler:     res.create,
		},
		{
			Name:        "update_" + res.singular,
			Description: "Update fields of an existing " + res.singular,
			InputSchema: res.updateSchema(),
			Handler:     res.update,
		},
		{
			Name:        "delete_" + res.singular,
			Description: "Delete a " + res.singular + " by id",
			InputSchema: idSchema,
			Handler:     res.remove,
		},
	}
}

func (res resource) scopeHint() string {
	if res.scoped {
		return ", optionally filtered by mapId"
	}
	return ""
}

var idSchema = json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","minLength":1}},"required":["id"]}`)

func (res resource) listSchema() json.RawMessage {
	props := `"page":{"type":"integer","minimum":1},"limit":{"type":"integer","minimum":1,"maximum":100}`
	if res.scoped {
		props += `,"mapId":{"type":"string","minLength":1}`
	}
	return json.RawMessage(`{"type":"object","properties":{` + props + `}}`)
}

func (res resource) createSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{` + res.properties + `},"required":` + quoteList(res.required) + `}`)
}

func (res resource) updateSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","minLength":1},` +
		res.properties + `},"required":["id"],"minProperties":2}`)
}

func quoteList(items []string) string {
	b, _ := json.Marshal(items)
	return string(b)
}

type listArgs struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	MapID string `json:"mapId"`
}

type idArgs struct {
	ID string `json:"id"`
}

func (res resource) list(ctx context.Context, api API, args json.RawMessage) (any, error) {
	var in listArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errors.Wrap(ErrInvalidArguments, err.Error())
	}
	query := url.Values{}
	if in.Page > 0 {
		query.Set("page", strconv.Itoa(in.Page))
	}
	if in.Limit > 0 {
		query.Set("limit", strconv.Itoa(in.Limit))
	}
	if res.scoped && in.MapID != "" {
		query.Set("mapId", in.MapID)
	}
	return api.Get(ctx, res.path, query)
}

func (res resource) get(ctx context.Context, api API, args json.RawMessage) (any, error) {
	id, err := decodeID(args)
	if err != nil {
		return nil, err
	}
	return api.Get(ctx, res.itemPath(id), nil)
}

func (res resource) create(ctx context.Context, api API, args json.RawMessage) (any, error) {
	body, err := decodeObject(args)
	if err != nil {
		return nil, err
	}
	if res.prepare != nil {
		if err := res.prepare(body); err != nil {
			return nil, err
		}
	}
	return api.Post(ctx, res.path, body)
}

func (res resource) update(ctx context.Context, api API, args json.RawMessage) (any, error) {
	body, err := decodeObject(args)
	if err != nil {
		return nil, err
	}
	id, _ := body["id"].(string)
	if id == "" {
		return nil, errors.Wrap(ErrInvalidArguments, "id is required")
	}
	delete(body, "id")
	if res.prepare != nil {
		if err := res.prepare(body); err != nil {
			return nil, err
		}
	}
	return api.Put(ctx, res.itemPath(id), body)
}

func (res resource) remove(ctx context.Context, api API, args json.RawMessage) (any, error) {
	id, err := decodeID(args)
	if err != nil {
		return nil, err
	}
	return api.Delete(ctx, res.itemPath(id))
}

func (res resource) itemPath(id string) string {
	return res.path + "/" + url.PathEscape(id)
}

func decodeID(args json.RawMessage) (string, error) {
	var in idArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return "", errors.Wrap(ErrInvalidArguments, err.Error())
	}
	if in.ID == "" {
		return "", errors.Wrap(ErrInvalidArguments, "id is required")
	}
	return in.ID, nil
}

// decodeObject keeps numbers as json.Number so they round-trip unchanged.
func decodeObject(args json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, errors.Wrap(ErrInvalidArguments, err.Error())
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

// renderPostMarkdown replaces a markdown field with its rendered HTML content.
func renderPostMarkdown(body map[string]any) error {
	raw, ok := body["markdown"]
	if !ok {
		return nil
	}
	if _, hasContent := body["content"]; hasContent {
		return errors.Wrap(ErrInvalidArguments, "markdown and content are mutually exclusive")
	}
	src, ok := raw.(string)
	if !ok {
		return errors.Wrap(ErrInvalidArguments, "markdown must be a string")
	}
	html, err := RenderMarkdown(src)
	if err != nil {
		return err
	}
	body["content"] = html
	delete(body, "markdown")
	return nil
}

// ABOUTME: Thread-safe registry mapping tool names to schemas and handlers.
// ABOUTME: Validates arguments against each tool's JSON schema before dispatch.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrToolCollision indicates a tool name is already registered.
var ErrToolCollision = errors.New("tool name collision")

// ErrToolNotFound indicates no tool is registered under the requested name.
var ErrToolNotFound = errors.New("tool not found")

// ErrInvalidArguments indicates the arguments failed schema validation.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// ErrInvalidSchema indicates a tool's input schema does not compile.
var ErrInvalidSchema = errors.New("invalid tool input schema")

// API is the authenticated platform pipeline a handler talks through.
// *platform.Client implements it.
type API interface {
	Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
	Put(ctx context.Context, path string, body any) (json.RawMessage, error)
	Patch(ctx context.Context, path string, body any) (json.RawMessage, error)
	Delete(ctx context.Context, path string) (json.RawMessage, error)
}

// Handler executes a tool with already-validated arguments.
type Handler func(ctx context.Context, api API, args json.RawMessage) (any, error)

// Tool is one callable operation.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds the tool catalog. Lookups are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*entry
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*entry),
		logger: logger,
	}
}

// Register compiles each tool's schema and adds the tools atomically.
// Returns ErrToolCollision if any name is already taken, including within tools.
func (r *Registry) Register(tools ...Tool) error {
	compiled := make([]*entry, 0, len(tools))
	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if t.Name == "" {
			return errors.New("tool name is required")
		}
		if t.Handler == nil {
			return errors.Newf("tool %q has no handler", t.Name)
		}
		if seen[t.Name] {
			return errors.Wrapf(ErrToolCollision, "tool %q listed twice", t.Name)
		}
		seen[t.Name] = true

		schema, err := compileSchema(t.Name, t.InputSchema)
		if err != nil {
			return err
		}
		compiled = append(compiled, &entry{tool: t, schema: schema})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range compiled {
		if _, exists := r.tools[e.tool.Name]; exists {
			return errors.Wrapf(ErrToolCollision, "tool %q already registered", e.tool.Name)
		}
	}
	for _, e := range compiled {
		r.tools[e.tool.Name] = e
		r.order = append(r.order, e.tool.Name)
	}

	r.logger.Debug("tools registered", "count", len(compiled), "total_tools", len(r.tools))
	return nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	resource := "https://mapgate.local/tools/" + name + ".json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "tool %q", name), ErrInvalidSchema)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "tool %q", name), ErrInvalidSchema)
	}
	return schema, nil
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].tool)
	}
	return out
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return e.tool, true
}

// Call validates args against the tool's schema and runs its handler.
// Empty args are treated as an empty object.
func (r *Registry) Call(ctx context.Context, api API, name string, args json.RawMessage) (any, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrToolNotFound, "%q", name)
	}

	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		args = json.RawMessage("{}")
	}
	if err := validate(e.schema, args); err != nil {
		return nil, err
	}

	r.logger.Debug("calling tool", "tool_name", name)
	return e.tool.Handler(ctx, api, args)
}

func validate(schema *jsonschema.Schema, args json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return errors.Wrap(ErrInvalidArguments, "arguments are not valid JSON")
	}
	if err := schema.Validate(instance); err != nil {
		var valErr *jsonschema.ValidationError
		if errors.As(err, &valErr) {
			return errors.Wrap(ErrInvalidArguments, describeValidation(valErr))
		}
		return errors.Wrap(ErrInvalidArguments, err.Error())
	}
	return nil
}

// describeValidation flattens a validation tree into "location: message" leaves.
func describeValidation(ve *jsonschema.ValidationError) string {
	var leaves []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			leaves = append(leaves, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(leaves, "; ")
}

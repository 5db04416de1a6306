// ABOUTME: REST shim exposing the tool registry as plain HTTP endpoints.
// ABOUTME: Uses one process-level platform pipeline and maps core errors to HTTP statuses.

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/mapgate/internal/auth"
	"github.com/2389/mapgate/internal/platform"
	"github.com/2389/mapgate/internal/store"
	"github.com/2389/mapgate/internal/tools"
)

// MaxRequestBodySize is the maximum allowed size for tool arguments (1MB).
const MaxRequestBodySize = 1 << 20

// Config holds configuration for the REST shim.
type Config struct {
	Registry *tools.Registry
	API      tools.API // process-level pipeline
	Recorder store.CallRecorder
	// Verifier enables bearer JWT auth on /tools routes when set.
	Verifier auth.TokenVerifier
	ClientID string // recorded when no principal is present
	Version  string
	Logger   *slog.Logger
}

// Server serves GET /health, GET /tools and POST /tools/{name}.
type Server struct {
	registry *tools.Registry
	api      tools.API
	recorder store.CallRecorder
	verifier auth.TokenVerifier
	clientID string
	version  string
	logger   *slog.Logger
}

// ToolInfo is one entry of the GET /tools response.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResponse is the JSON response for GET /tools.
type ListToolsResponse struct {
	Tools []ToolInfo `json:"tools"`
}

// CallToolResponse is the JSON response for a successful POST /tools/{name}.
type CallToolResponse struct {
	Result json.RawMessage `json:"result"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Tools   int    `json:"tools"`
}

// NewServer creates a REST shim server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.API == nil {
		return nil, errors.New("api is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return &Server{
		registry: cfg.Registry,
		api:      cfg.API,
		recorder: cfg.Recorder,
		verifier: cfg.Verifier,
		clientID: cfg.ClientID,
		version:  version,
		logger:   logger,
	}, nil
}

// RegisterRoutes registers the REST endpoints on mux. /health is never authenticated.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /tools", s.protect(http.HandlerFunc(s.handleListTools)))
	mux.Handle("POST /tools/{name}", s.protect(http.HandlerFunc(s.handleCallTool)))
}

func (s *Server) protect(h http.Handler) http.Handler {
	if s.verifier == nil {
		return h
	}
	return auth.HTTPAuthMiddleware(s.verifier)(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Tools:   len(s.registry.List()),
	})
}

// handleListTools lists the tools the caller may invoke.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	principal := auth.FromContext(r.Context())

	resp := ListToolsResponse{Tools: []ToolInfo{}}
	for _, t := range s.registry.List() {
		if principal != nil && !principal.Allows(t.Name) {
			continue
		}
		resp.Tools = append(resp.Tools, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleCallTool runs one tool with the request body as its arguments.
func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	w.Header().Set("X-Request-Id", requestID)

	name := r.PathValue("name")
	clientID := s.clientID
	if principal := auth.FromContext(r.Context()); principal != nil {
		if !principal.Allows(name) {
			s.sendJSONError(w, http.StatusForbidden, "tool not permitted for this token")
			return
		}
		clientID = principal.Subject
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	start := time.Now()
	out, err := s.registry.Call(r.Context(), s.api, name, body)
	var result json.RawMessage
	if err == nil {
		result, err = resultJSON(out)
	}
	duration := time.Since(start)
	s.record(r.Context(), requestID, clientID, name, duration, err)

	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Warn("tool execution failed",
				"tool_name", name,
				"request_id", requestID,
				"status_code", status,
				"error", err,
			)
		}
		s.sendJSONError(w, status, err.Error())
		return
	}

	s.logger.Debug("tool call complete", "tool_name", name, "request_id", requestID, "duration", duration)
	s.sendJSON(w, http.StatusOK, CallToolResponse{Result: result})
}

func (s *Server) record(ctx context.Context, requestID, clientID, toolName string, duration time.Duration, err error) {
	if s.recorder == nil {
		return
	}
	call := store.ToolCall{
		RequestID: requestID,
		Transport: store.TransportREST,
		ClientID:  clientID,
		ToolName:  toolName,
		OK:        err == nil,
		Duration:  duration,
	}
	if err != nil {
		call.Error = err.Error()
	}
	s.recorder.Record(ctx, call)
}

// statusFor maps a tool error to an HTTP status. Platform statuses pass through.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tools.ErrToolNotFound):
		return http.StatusNotFound
	case errors.Is(err, tools.ErrInvalidArguments):
		return http.StatusBadRequest
	case errors.Is(err, platform.ErrAuthConfig):
		return http.StatusInternalServerError
	case errors.Is(err, platform.ErrAuthRequest), errors.Is(err, platform.ErrTransportNetwork):
		return http.StatusBadGateway
	case errors.Is(err, platform.ErrBusinessRequest):
		if code, ok := platform.StatusCode(err); ok {
			return code
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// resultJSON renders a handler result as a JSON value.
func resultJSON(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return json.RawMessage("null"), nil
		}
		return raw, nil
	}
	return json.Marshal(v)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}

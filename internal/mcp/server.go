// ABOUTME: Multi-tenant MCP endpoint over HTTP POST.
// ABOUTME: Credentials come from the URL; every request gets a fresh platform pipeline.

package mcp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/2389/mapgate/internal/platform"
	"github.com/2389/mapgate/internal/tools"
)

// ClientFactory builds a pipeline bound to one credential set.
type ClientFactory func(creds platform.Credentials) (tools.API, error)

// HTTPConfig holds configuration for the multi-tenant HTTP endpoint.
type HTTPConfig struct {
	Handler   *Handler
	NewClient ClientFactory
	Logger    *slog.Logger
}

// HTTPServer serves JSON-RPC at /mcp/{clientId}/{clientSecret} and /mcp?apiKey=.
// It keeps no state between requests.
type HTTPServer struct {
	handler   *Handler
	newClient ClientFactory
	logger    *slog.Logger
}

// NewHTTPServer creates an HTTPServer.
func NewHTTPServer(cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if cfg.NewClient == nil {
		return nil, errors.New("client factory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		handler:   cfg.Handler,
		newClient: cfg.NewClient,
		logger:    logger,
	}, nil
}

// RegisterRoutes registers the MCP endpoints on the given ServeMux.
func (s *HTTPServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /mcp", s.handlePost)
	mux.HandleFunc("POST /mcp/{clientId}/{clientSecret}", s.handlePost)
}

// credentialsFrom reads the tenant's credentials from the path and query string.
func credentialsFrom(r *http.Request) platform.Credentials {
	return platform.Credentials{
		ClientID:     r.PathValue("clientId"),
		ClientSecret: r.PathValue("clientSecret"),
		APIKey:       r.URL.Query().Get("apiKey"),
	}
}

// handlePost processes one JSON-RPC message.
func (s *HTTPServer) handlePost(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	w.Header().Set("X-Request-Id", requestID)

	if v := r.Header.Get("Mcp-Protocol-Version"); v != "" && !supportedProtocolVersions[v] {
		http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.send(w, errorResponse(nil, JSONRPCParseError, "failed to read request body", nil))
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.send(w, errorResponse(nil, JSONRPCInvalidRequest, "request body too large", nil))
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.send(w, errorResponse(nil, JSONRPCParseError, "invalid JSON", nil))
		return
	}

	creds := credentialsFrom(r)
	api, err := s.newClient(creds)
	if err != nil {
		s.logger.Error("failed to build platform client", "request_id", requestID, "error", err)
		s.send(w, errorResponse(req.ID, JSONRPCInternalError, "platform client unavailable", nil))
		return
	}

	caller := Caller{API: api, ClientID: creds.ClientID, RequestID: requestID}
	resp := s.handler.Handle(r.Context(), caller, req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.send(w, resp)
}

func (s *HTTPServer) send(w http.ResponseWriter, resp *JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}

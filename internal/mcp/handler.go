// ABOUTME: Transport-independent MCP method dispatcher.
// ABOUTME: Maps initialize, ping, tools/list and tools/call onto the tool registry.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/mapgate/internal/platform"
	"github.com/2389/mapgate/internal/store"
	"github.com/2389/mapgate/internal/tools"
)

// HandlerConfig holds configuration for the MCP method handler.
type HandlerConfig struct {
	Registry      *tools.Registry
	Recorder      store.CallRecorder // optional audit sink
	Transport     string             // recorded with each tool call
	ServerName    string
	ServerVersion string
	Logger        *slog.Logger
}

// Handler answers MCP JSON-RPC requests. It holds no per-client state.
type Handler struct {
	registry  *tools.Registry
	recorder  store.CallRecorder
	transport string
	name      string
	version   string
	logger    *slog.Logger
}

// Caller is the per-request context a transport supplies to Handle.
type Caller struct {
	API       tools.API // platform pipeline bound to the caller's credentials
	ClientID  string    // for audit only
	RequestID string
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.ServerName
	if name == "" {
		name = "mapgate"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "dev"
	}
	return &Handler{
		registry:  cfg.Registry,
		recorder:  cfg.Recorder,
		transport: cfg.Transport,
		name:      name,
		version:   version,
		logger:    logger,
	}, nil
}

// Handle processes one request. It returns nil for notifications.
func (h *Handler) Handle(ctx context.Context, caller Caller, req JSONRPCRequest) *JSONRPCResponse {
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil)
	}
	if req.Method == "" {
		return errorResponse(req.ID, JSONRPCInvalidRequest, "method is required", nil)
	}

	if req.IsNotification() {
		if strings.HasPrefix(req.Method, "notifications/") {
			h.logger.Debug("accepted MCP notification", "method", req.Method)
		} else {
			h.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		return nil
	}

	h.logger.Debug("MCP request", "method", req.Method, "request_id", caller.RequestID)

	switch req.Method {
	case "initialize":
		return h.handleInitialize(req)
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return h.handleToolsList(req)
	case "tools/call":
		return h.handleToolsCall(ctx, caller, req)
	default:
		return errorResponse(req.ID, JSONRPCMethodNotFound, "method not found", nil)
	}
}

// handleInitialize echoes a supported client protocol version, else offers the latest.
func (h *Handler) handleInitialize(req JSONRPCRequest) *JSONRPCResponse {
	var params MCPInitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params", nil)
		}
	}

	version := latestProtocolVersion
	if supportedProtocolVersions[params.ProtocolVersion] {
		version = params.ProtocolVersion
	}

	h.logger.Info("MCP client initialized",
		"client_name", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", version,
	)

	return resultResponse(req.ID, map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    h.name,
			"version": h.version,
		},
	})
}

// handleToolsList handles tools/list requests.
func (h *Handler) handleToolsList(req JSONRPCRequest) *JSONRPCResponse {
	all := h.registry.List()
	result := MCPListToolsResult{Tools: make([]MCPToolInfo, len(all))}
	for i, t := range all {
		result.Tools[i] = MCPToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
	}

	h.logger.Debug("tools/list", "count", len(all))
	return resultResponse(req.ID, result)
}

// handleToolsCall handles tools/call requests.
func (h *Handler) handleToolsCall(ctx context.Context, caller Caller, req JSONRPCRequest) *JSONRPCResponse {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params", nil)
		}
	}
	if params.Name == "" {
		return errorResponse(req.ID, JSONRPCInvalidParams, "tool name is required", nil)
	}

	start := time.Now()
	out, err := h.registry.Call(ctx, caller.API, params.Name, params.Arguments)
	duration := time.Since(start)

	var text string
	if err == nil {
		text, err = resultText(out)
	}
	h.record(ctx, caller, params.Name, duration, err)

	if err != nil {
		return h.handleToolError(req.ID, params.Name, caller.RequestID, err)
	}

	h.logger.Debug("tools/call complete",
		"tool_name", params.Name,
		"request_id", caller.RequestID,
		"duration", duration,
	)
	return resultResponse(req.ID, MCPCallToolResult{
		Content: []MCPContent{{Type: "text", Text: text}},
	})
}

// handleToolError maps registry errors to JSON-RPC errors and everything else
// (platform, network, timeout) to an isError tool result.
func (h *Handler) handleToolError(id json.RawMessage, toolName, requestID string, err error) *JSONRPCResponse {
	switch {
	case errors.Is(err, tools.ErrToolNotFound):
		return errorResponse(id, JSONRPCInvalidParams, "tool not found", map[string]string{"tool": toolName})
	case errors.Is(err, tools.ErrInvalidArguments):
		return errorResponse(id, JSONRPCInvalidParams, err.Error(), map[string]string{"tool": toolName})
	}

	h.logger.Warn("tool execution failed",
		"tool_name", toolName,
		"request_id", requestID,
		"error_kind", platform.KindOf(err).String(),
		"error", err,
	)

	message := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		message = "tool execution timed out: " + message
	case errors.Is(err, context.Canceled):
		message = "request cancelled"
	}

	return resultResponse(id, MCPCallToolResult{
		Content: []MCPContent{{Type: "text", Text: message}},
		IsError: true,
	})
}

func (h *Handler) record(ctx context.Context, caller Caller, toolName string, duration time.Duration, err error) {
	if h.recorder == nil {
		return
	}
	call := store.ToolCall{
		RequestID: caller.RequestID,
		Transport: h.transport,
		ClientID:  caller.ClientID,
		ToolName:  toolName,
		OK:        err == nil,
		Duration:  duration,
	}
	if err != nil {
		call.Error = err.Error()
	}
	h.recorder.Record(ctx, call)
}

// resultText renders a handler result as the text of an MCP content block.
func resultText(v any) (string, error) {
	switch r := v.(type) {
	case nil:
		return "null", nil
	case json.RawMessage:
		if len(r) == 0 {
			return "null", nil
		}
		return string(r), nil
	case string:
		return r, nil
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

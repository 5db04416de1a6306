// ABOUTME: Newline-delimited JSON-RPC transport over stdin/stdout.
// ABOUTME: One client per process; requests run concurrently, responses are serialised.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/mapgate/internal/tools"
)

// maxLineSize bounds a single JSON-RPC message on stdin.
const maxLineSize = 4 * MaxRequestBodySize

// StdioConfig holds configuration for the stdio transport.
type StdioConfig struct {
	Handler  *Handler
	API      tools.API // process-level pipeline
	ClientID string    // recorded in the audit log
	In       io.Reader
	Out      io.Writer
	Logger   *slog.Logger
}

// StdioServer serves one MCP client over a pair of streams.
type StdioServer struct {
	handler  *Handler
	api      tools.API
	clientID string
	in       io.Reader
	logger   *slog.Logger

	writeMu sync.Mutex
	enc     *json.Encoder
}

// NewStdioServer creates a StdioServer.
func NewStdioServer(cfg StdioConfig) (*StdioServer, error) {
	if cfg.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if cfg.API == nil {
		return nil, errors.New("api is required")
	}
	if cfg.In == nil || cfg.Out == nil {
		return nil, errors.New("input and output streams are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioServer{
		handler:  cfg.Handler,
		api:      cfg.API,
		clientID: cfg.ClientID,
		in:       cfg.In,
		logger:   logger,
		enc:      json.NewEncoder(cfg.Out),
	}, nil
}

type scanResult struct {
	line []byte
	err  error
}

// Serve reads requests until EOF or ctx is cancelled, then waits for
// in-flight requests to finish.
func (s *StdioServer) Serve(ctx context.Context) error {
	lines := make(chan scanResult)
	go s.readLines(ctx, lines)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case res, ok := <-lines:
			if !ok {
				s.logger.Debug("stdin closed")
				return nil
			}
			if res.err != nil {
				return res.err
			}

			var req JSONRPCRequest
			if err := json.Unmarshal(res.line, &req); err != nil {
				s.logger.Debug("discarding unparsable message", "error", err)
				s.write(errorResponse(nil, JSONRPCParseError, "invalid JSON", nil))
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				caller := Caller{API: s.api, ClientID: s.clientID, RequestID: uuid.New().String()}
				if resp := s.handler.Handle(ctx, caller, req); resp != nil {
					s.write(resp)
				}
			}()
		}
	}
}

// readLines feeds non-empty lines from the input stream. The channel is
// closed on EOF; a scan error is delivered as the final value.
func (s *StdioServer) readLines(ctx context.Context, out chan<- scanResult) {
	defer close(out)

	sc := bufio.NewScanner(s.in)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		b := sc.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		line := append([]byte(nil), b...)
		select {
		case out <- scanResult{line: line}:
		case <-ctx.Done():
			return
		}
	}
	if err := sc.Err(); err != nil {
		select {
		case out <- scanResult{err: err}:
		case <-ctx.Done():
		}
	}
}

func (s *StdioServer) write(resp *JSONRPCResponse) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.enc.Encode(resp); err != nil {
		s.logger.Warn("failed to write JSON-RPC response", "error", err)
	}
}

// Package store provides the tool call audit log for mapgate using SQLite.
//
// # Architecture
//
//   - ToolCallStore: persistence interface for audit records
//   - SQLiteStore: the modernc.org/sqlite implementation (pure Go, WAL mode)
//   - MockStore: in-memory implementation for tests
//   - Recorder: best-effort CallRecorder used by the transports
//
// # Schema
//
//	tool_calls(id, request_id, transport, client_id, tool_name, ok, error,
//	           duration_ms, created_at)
//
// Timestamps are stored as fixed-width UTC strings so they sort lexically.
// Columns added after the first release are applied by idempotent migrations
// at open time.
//
// # Failure Semantics
//
// Auditing is auxiliary. Recorder logs write failures at warn level and never
// returns them, so a broken audit database cannot fail a tool call.
// Client secrets, tokens and API keys are never recorded.
package store

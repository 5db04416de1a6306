// Package mcp exposes the tool registry to Model Context Protocol clients.
//
// # Protocol
//
// Messages are JSON-RPC 2.0. Supported methods:
//
//   - initialize: protocol negotiation; the client's version is echoed when supported
//   - ping: liveness, returns {}
//   - tools/list: every registered tool with its input schema
//   - tools/call: validate arguments, run the handler, return text content
//
// Requests without an id are notifications and get no response.
//
// # Transports
//
// StdioServer speaks newline-delimited JSON-RPC on stdin/stdout for a single
// client whose credentials come from the process environment. Each request is
// handled on its own goroutine and responses are written one at a time.
//
// HTTPServer is multi-tenant. The caller's credentials are part of the URL:
//
//	POST /mcp/{clientId}/{clientSecret}
//	POST /mcp?apiKey=<key>
//
// A fresh platform pipeline is built for every request, so no token state is
// shared between tenants or kept between requests. Notifications are answered
// with 202 Accepted.
//
// # Errors
//
// Unknown tools and arguments that fail schema validation are JSON-RPC
// -32602 errors. Failures from the platform (rejected credentials, non-2xx
// business responses, network errors) are returned as a tool result with
// isError set and the platform's message as text.
//
// # Example
//
//	{"jsonrpc":"2.0","id":2,"method":"tools/call",
//	 "params":{"name":"get_map","arguments":{"id":"m-1"}}}
package mcp

// Package rest is a plain-HTTP shim over the tool registry for callers that
// do not speak JSON-RPC.
//
// # Endpoints
//
//	GET  /health        liveness and tool count, never authenticated
//	GET  /tools         tools visible to the caller
//	POST /tools/{name}  body is the tool's arguments object
//
// A successful call returns {"result": <tool output>}. Failures return
// {"error": "<message>"} with a status derived from the error:
//
//   - 400 arguments failed schema validation
//   - 404 unknown tool
//   - the platform's own status for rejected business calls
//   - 502 identity endpoint or network failure
//   - 500 credentials not configured
//
// All requests share one platform pipeline built from the process
// configuration. When a JWT verifier is configured, /tools routes require a
// bearer token and a token's tools claim limits what it may list and call.
package rest

// Package auth provides inbound authentication for the mapgate REST shim.
//
// # JWT Tokens
//
// When server.require_auth is set, REST requests must carry
//
//	Authorization: Bearer <jwt>
//
// Tokens are HS256-signed with server.jwt_secret. Claims:
//
//   - sub: required subject, logged with each call
//   - exp: expiry, enforced
//   - tools: optional list of tool names the token may call; absent means all
//
// Mint a token with "mapgate token -sub <name> [-tools a,b] [-ttl 24h]".
//
// # Context
//
// HTTPAuthMiddleware attaches the verified Principal to the request context;
// handlers read it back with FromContext.
//
// Outbound platform authentication lives in package platform, not here.
package auth

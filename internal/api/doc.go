// Package api implements the read-only HTTP status surface of knxnetd.
//
// This package provides:
//   - REST endpoints for the connection, statistics, the status pool and
//     recorded bus addresses
//   - A WebSocket feed of telegrams, state changes and errors
//   - Prometheus exposition on /metrics
//   - Optional HS256 bearer authentication
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Security
//
// When security.jwt.secret is empty every endpoint is open; bind the server
// to loopback in that case. With a secret, all routes except /api/v1/health
// and /metrics need a token signed with it. Browsers cannot set headers on
// WebSocket upgrades, so /api/v1/ws also accepts the token as the
// access_token query parameter.
//
// # Routes
//
//	GET /metrics
//	GET /api/v1/health
//	GET /api/v1/connection
//	GET /api/v1/statistics
//	GET /api/v1/status
//	GET /api/v1/status/{address}      address URL-encoded: 1%2F2%2F3 or 1.1.5
//	GET /api/v1/addresses/groups      ?limit=N
//	GET /api/v1/addresses/devices
//	GET /api/v1/ws
package api

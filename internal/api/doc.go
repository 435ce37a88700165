// Package api implements printcast's optional read-only status API.
//
// This package provides:
//   - GET /api/v1/health for liveness checks
//   - GET /api/v1/status with connection, overlay and pipeline state
//   - GET /api/v1/jobs and /api/v1/jobs/{id}/transitions from the print journal
//   - GET /api/v1/ws, a WebSocket feed of projected status reports
//   - Middleware stack (request ID, logging, recovery)
//
// The API never mutates the bridge. It is meant for a local dashboard or a
// monitoring agent next to the streaming machine, so it has no
// authentication and binds to 127.0.0.1 unless configured otherwise.
package api

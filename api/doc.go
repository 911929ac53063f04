// Package api provides the HTTP surface of the lobby server.
//
// Endpoints:
//
//   - GET /ws?nickname=<nick> - join the room over WebSocket. A nickname that
//     is empty or too long is refused with 403 before the upgrade.
//   - GET /api/room - the room's phase, admin, lobby view and live connection count
//   - GET /api/sessions - open sessions, oldest first
//   - GET /api/sessions/{id} - one open session
//   - GET /healthz - pings the room store; 503 when it is unreachable
//
// The /api endpoints are read-only. All game actions travel over the
// WebSocket.
//
// Errors are returned as JSON with an appropriate HTTP status code:
//
//	{"error": "error message"}
package api

// Package server provides the daemon's local control API.
//
// The daemon is the only process that writes the state store. Other
// processes (the terminal UI, one-shot CLI commands) reach it through this
// API:
//
//   - GET /api/state: JSON snapshot of the persisted state
//   - GET /api/sse: Server-Sent Events stream of store events
//   - GET /api/ws: WebSocket channel carrying [Request] messages and
//     [Frame] replies, plus pushed events after a subscribe request
//
// The server shuts down gracefully on context cancellation, with a
// 5-second timeout for in-flight requests.
package server

// Package blockyswitch keeps a local view of a remote blocking switch (the
// kind a network ad blocker exposes over HTTP) in step with the switch
// itself, and lets the user flip it.
//
// # Quick Start
//
// Run the background side with graceful shutdown:
//
//	sw, _ := blockyswitch.New(
//	    blockyswitch.WithHost("http://pi.hole"),
//	    blockyswitch.WithState(blockyswitch.BackendYAML, "/home/me/.blockyswitch/state.yaml"),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	sw.Run(ctx) // blocks until context is cancelled
//
// # Remote API
//
// The host must answer three GET requests:
//
//   - {host}/api/blocking/status with {"enabled": bool}
//   - {host}/api/blocking/enable
//   - {host}/api/blocking/disable
//
// Every request is tried on a primary transport first and, if that fails,
// once more on a fallback transport with a hard timeout. Only when both fail
// is the operation reported as failed.
//
// # Consistency
//
// A [Switch] is the only writer of the persisted [State]. The status is
// checked every 30 seconds and on demand. Each check and each toggle takes a
// sequence number when it is issued, and a result that arrives after a newer
// one has been written is discarded, so a slow response never overwrites a
// fresher one.
//
// Other processes (the terminal UI, one-shot CLI commands) talk to a running
// Switch over its local control API on 127.0.0.1:7377.
//
// # Architecture
//
//   - internal/transport: primary and timeout-bounded fallback HTTP requesters
//   - internal/reconcile: the two-stage request protocol
//   - internal/store: persisted state (YAML or SQLite) with pub/sub events
//   - internal/indicator: badge publishing to console, tray and callbacks
//   - internal/poller: the fixed-cadence scheduler
//   - internal/server, internal/client: the local control API
//   - internal/controller, internal/tui: the interactive surface
//
// The internal packages are not part of the public API and may change
// without notice.
package blockyswitch

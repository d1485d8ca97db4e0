// Package store is the single source of truth for the host address, the last
// known blocking status and the last refresh time.
//
// A [Store] is owned by exactly one process at a time (normally the daemon).
// It persists through a [Backend] ([FileBackend] for YAML, [SQLiteBackend]
// for SQLite) and fans out [Event] values to subscribers, using the same
// buffered, drop-on-slow-consumer channels the rest of the system relies on
// for live updates.
//
// Writes of the blocking status are sequence checked: every reconciliation
// takes a number from [Store.Begin] when it is issued, and [Store.Commit]
// rejects a result whose number is not newer than the last accepted one.
// A slow response can therefore never overwrite a fresher one.
package store

// Package transport performs single HTTP GET requests against the remote
// blocking service.
//
// Two interchangeable [Requester] implementations share one result contract:
//
//   - [Primary]: a single-shot GET bounded only by the caller's context.
//   - [Timed]: a GET with a hard timeout (10 seconds by default) that reports
//     [KindTimedOut] separately from other transport failures.
//
// Every failure is returned as an [*Error] carrying a [Kind], so callers can
// branch on the failure class with [KindOf] instead of string matching.
package transport

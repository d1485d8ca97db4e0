// Package poller keeps the cached blocking status fresh by checking the
// remote service at a fixed cadence.
//
// A [Scheduler] runs one [Scheduler.Tick] immediately on start and then one
// per interval. Each tick takes a write sequence number before issuing the
// check, so a result that returns after a newer write is discarded by the
// store. A failed check is reported and logged but never changes the stored
// status.
package poller

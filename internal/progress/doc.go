// Package progress carries run and row milestones from the check loop to
// pluggable sinks. Emitting never blocks the loop: events are batched on a
// background goroutine and fanned out to sinks such as Prometheus collectors,
// structured logs, or the run ledger.
package progress

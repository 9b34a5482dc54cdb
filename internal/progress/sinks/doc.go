// Package sinks implements concrete progress consumers: Prometheus
// collectors, structured logging, and the run ledger. Each satisfies
// progress.Sink.
package sinks

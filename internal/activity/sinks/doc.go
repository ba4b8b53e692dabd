// Package sinks implements concrete activity consumers: structured logging,
// Prometheus collectors and the persistent download history. Each sink
// satisfies activity.Sink and is safe for repeated Consume/Close cycles.
package sinks

// Package metrics provides session counters for monitoring.
//
// Key counters:
//   - Message flow: sent, enqueued, replayed, send errors
//   - Inbound handling: duplicates suppressed, deliveries dropped
//   - Resilience: reconnects completed, room rejoins emitted
//
// Counters are atomic and safe to bump from any goroutine; Snapshot
// gives a consistent-enough view for logs and health endpoints.
package metrics

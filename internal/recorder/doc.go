// Package recorder archives session activity to PostgreSQL.
//
// Two recorders run side by side:
//   - EventRecorder consumes inbound gateway events from the session
//     channel and writes them to gateway_events.
//   - TransitionRecorder subscribes to session state changes and
//     writes them to session_transitions.
//
// Both accumulate rows and flush in batches, either when the batch
// fills or on a ticker. Failed batches are requeued up to a cap so a
// database outage degrades to bounded loss instead of unbounded
// memory growth.
package recorder

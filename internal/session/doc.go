// Package session implements the resilient gateway session.
//
// The session client:
//   - Drives the connection state machine (disconnected, connected,
//     reconnecting, failed)
//   - Reconnects with exponential backoff, giving up after a bounded
//     number of attempts
//   - Buffers outbound payloads while disconnected and replays them in
//     order on the next connection
//   - Suppresses duplicate inbound events by gateway id
//   - Re-announces room membership after a reconnect
//
// A generation counter is bumped on every Connect and Disconnect;
// events from a superseded transport are discarded, so overlapping
// reconnect attempts cannot corrupt session state.
package session

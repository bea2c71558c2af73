// Package transport provides the WebSocket connection to the Podwave
// realtime gateway.
//
// Each dial produces a single-use Conn:
//   - inbound frames stream on Messages until termination
//   - Done closes exactly once, with Err holding the cause
//   - client-side pings with pong-extended read deadlines surface
//     half-dead connections as stale errors
//
// The session layer depends only on the Conn/DialFunc shape, never on
// gorilla types.
package transport

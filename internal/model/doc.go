// Package model defines shared data types used across the Podwave relay.
//
// Conventions:
//   - Timestamps: int64 microseconds since Unix epoch
//   - Event IDs: strings as assigned by the gateway
package model

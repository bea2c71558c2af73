// Package api provides the Podwave platform REST client.
//
// REST endpoint:
//   - Production: https://api.podwave.io/platform/v1
//
// The relay uses it to check gateway availability and resolve room
// metadata before opening a session. Requests are signed with the
// HMAC credentials from the auth package.
package api

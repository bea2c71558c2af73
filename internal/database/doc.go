// Package database manages the PostgreSQL connection pool for the
// event archive.
//
// The archive holds gateway events and session state transitions.
// Connection strings are built from config with pool sizing applied
// through pgxpool settings rather than URL parameters.
package database

// Package db provides the durable pending store of the form relay.
// It encapsulates all interactions with the embedded SQLite database, which holds
// every submission that was accepted but not yet confirmed delivered, together with
// the audit trail of forwarding attempts.
//
// This package is responsible for:
// - Establishing the database connection with durable write settings (`db.go`).
// - Defining database-specific data structures that map to SQL table schemas.
// - Implementing the repository interfaces of the `domain` package
//   (`PendingRepository`, `AttemptRepository`, `StatsRepository`).
// - Compressing submission payloads before they are written (`types.go`).
// - Managing database migrations (`migrations/`).
package db

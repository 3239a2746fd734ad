// Package domain defines the core data structures of the form relay.
// It contains the Submission that travels from the public forms to the admin API,
// the idempotency Record replayed to duplicate submissions, the Attempt audit entries,
// and the repository interfaces that define the contracts for durable persistence.
//
// This package has no knowledge of SQLite, HTTP or the forwarding transport. By defining
// interfaces for repositories, the domain package remains independent of the storage technology.
package domain

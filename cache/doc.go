// Package cache implements the idempotency cache of the form relay.
//
// Every trace ID maps to at most one live domain.Record. Records expire after a fixed
// retention window and are then invisible to Lookup, regardless of their status. A
// background cleaner drops expired records from memory.
//
// Do runs a function as a critical section keyed by trace ID: concurrent callers with
// the same key share a single execution and its result, callers with different keys
// run in parallel.
package cache

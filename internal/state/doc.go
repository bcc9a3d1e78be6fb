// Package state provides read access to canonical workspace state, the
// persistence collaborator consulted before conflict detection.
//
// The core only ever reads through this package:
//   - Postgres: canonical state as JSONB, one row per workspace
//   - MemoryStore: in-process state for tests and diagnostics
package state

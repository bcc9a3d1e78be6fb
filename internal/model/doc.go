// Package model defines the shared wire types of the synchronization core.
//
// Conventions:
//   - Timestamps: int64 milliseconds since Unix epoch
//   - Message IDs: "msg-" + UUID, unique per envelope instance
//   - Update payloads: opaque to the core; only "type" and "source" are read
package model

// Package syncer implements the Update Synchronizer component.
//
// The Update Synchronizer:
//   - Binds a connection manager to one workspace/user pair
//   - Fans inbound updates out to per-workspace subscribers, isolated
//   - Pushes local updates wrapped in sdui_update envelopes
//   - Detects conflicting concurrent edits against canonical state and
//     resolves them under a configurable strategy
package syncer

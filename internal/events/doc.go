// Package events implements a small typed observer registry.
//
// The Emitter:
//   - Dispatches synchronously, in registration order
//   - Isolates handlers: a panicking handler is logged, the rest still run
//   - Deletes an event's entry once its last handler is removed
package events

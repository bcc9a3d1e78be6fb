// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns one WebSocket connection to the collaboration server
//   - Runs a five-state connection machine, emitting every transition
//   - Reconnects with a fixed interval, bounded by a max attempt count
//   - Sends periodic heartbeats while connected
//   - Queues outbound envelopes while disconnected (bounded, oldest-evicted)
package connection

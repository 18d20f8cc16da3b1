// Package transport owns one persistent WebSocket channel with
// reconnect-with-backoff and a periodic heartbeat.
//
// Ownership boundary:
// - dialing, reading and writing frames
// - connection state transitions and the reconnect schedule
// - heartbeat emission while connected
//
// Payload meaning belongs to the caller; the channel only moves bytes and
// reports Events in arrival order.
package transport

// Package session owns relay-session primitives shared by both roles.
//
// Ownership boundary:
// - connection state and relay-pushed session state
// - reconnect backoff and heartbeat defaults
// - client transport security (ws/wss, CA bundle, client certs)
//
// Channel I/O lives in internal/transport; this package holds no sockets.
package session

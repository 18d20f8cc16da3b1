// Package bridge runs the bridge role: it holds a relay channel and a
// hardware-endpoint channel, performs the hardware handshake, selects one
// device and relays motion commands to it.
//
// Ownership boundary:
// - handshake, inventory and device selection
// - relay command forwarding and acknowledgment reporting
// - translation of control/stop messages into hardware commands
//
// The bridge never paces or buffers commands. Pacing belongs to the sender;
// every inbound command is forwarded or dropped immediately.
package bridge

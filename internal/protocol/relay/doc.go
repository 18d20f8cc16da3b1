// Package relay defines the JSON messages exchanged with the relay.
//
// Messages are classified by payload shape: a typed object, a
// {"commands": [...]} envelope, or an opaque hardware-control array that is
// passed through untouched. Heartbeats decode to KindHeartbeat and carry no
// payload.
package relay

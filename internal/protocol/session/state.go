package session

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownState = errors.New("session: unknown session state")

// ConnState is the transport-level state of one channel.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("conn_state(%d)", int(s))
	}
}

// State is the relay-reported peer/device presence value.
type State string

const (
	StateWaitingPeer      State = "waiting_peer"
	StatePeerPresent      State = "peer_present"
	StatePeerDisconnected State = "peer_disconnected"
	StateWaitingDevice    State = "waiting_device"
	StateDeviceReady      State = "device_ready"
	StateDeviceRemoved    State = "device_removed"
)

// legacyStates maps status names pushed by older relays.
var legacyStates = map[string]State{
	"waiting_client":          StateWaitingPeer,
	"waiting_controller":      StateWaitingPeer,
	"client_connected":        StatePeerPresent,
	"controller_present":      StatePeerPresent,
	"client_disconnected":     StatePeerDisconnected,
	"controller_disconnected": StatePeerDisconnected,
	"waiting_toy":             StateWaitingDevice,
	"ready":                   StateDeviceReady,
}

func ParseState(raw string) (State, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch s := State(v); s {
	case StateWaitingPeer, StatePeerPresent, StatePeerDisconnected,
		StateWaitingDevice, StateDeviceReady, StateDeviceRemoved:
		return s, nil
	}
	if s, ok := legacyStates[v]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownState, raw)
}

// Expected reports whether from->to is an edge of the relay's documented
// state graph. Unexpected edges are still applied by StateTracker.
func Expected(from, to State) bool {
	if from == to || to == StatePeerDisconnected {
		return true
	}
	switch from {
	case StateWaitingPeer, StatePeerDisconnected:
		return to == StatePeerPresent
	case StatePeerPresent:
		return to == StateWaitingDevice || to == StateDeviceReady
	case StateWaitingDevice, StateDeviceRemoved:
		return to == StateDeviceReady || to == StateWaitingDevice
	case StateDeviceReady:
		return to == StateWaitingDevice || to == StateDeviceRemoved
	}
	return false
}

// StateTracker keeps the last relay-pushed State. It is owned by a single
// event loop and is not safe for concurrent use.
type StateTracker struct {
	current State
}

func NewStateTracker() *StateTracker {
	return &StateTracker{current: StateWaitingPeer}
}

func (t *StateTracker) Current() State {
	return t.current
}

func (t *StateTracker) DeviceReady() bool {
	return t.current == StateDeviceReady
}

// Apply records a relay push and returns the previous value.
func (t *StateTracker) Apply(next State) (prev State, changed bool) {
	prev = t.current
	t.current = next
	return prev, prev != next
}

// Reset returns to the initial state after a transport reconnect.
func (t *StateTracker) Reset() {
	t.current = StateWaitingPeer
}

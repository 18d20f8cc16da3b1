package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	TypeStatus         = "status"
	TypeCommandOK      = "command_ok"
	TypeSetDeviceIndex = "setDeviceIndex"
	TypeControl        = "control"
	TypeStop           = "stop"
	TypePing           = "ping"
)

var (
	ErrMalformedMessage = errors.New("relay: malformed message")
	ErrUnknownType      = errors.New("relay: unknown message type")
	ErrInvalidControl   = errors.New("relay: invalid control message")
)

// Role tags a relay connection with the query parameter "type".
type Role string

const (
	RoleBridge     Role = "client"
	RoleController Role = "controller"
)

type Status struct {
	Type        string  `json:"type"`
	State       string  `json:"state"`
	DeviceIndex *uint32 `json:"deviceIndex,omitempty"`
	Message     string  `json:"message,omitempty"`
}

type CommandOK struct {
	Type string `json:"type"`
	ID   uint32 `json:"id"`
}

// SetDeviceIndex announces the bridge's selection; a nil Index encodes as
// null and means the selection was lost.
type SetDeviceIndex struct {
	Type  string  `json:"type"`
	Index *uint32 `json:"index"`
}

type Control struct {
	Type             string  `json:"type"`
	Position         float64 `json:"position"`
	Speed            float64 `json:"speed"`
	SampleIntervalMS uint32  `json:"sampleIntervalMs"`
	IsFinal          bool    `json:"isFinal,omitempty"`
}

func (c Control) Validate() error {
	if math.IsNaN(c.Position) || math.IsInf(c.Position, 0) {
		return fmt.Errorf("%w: position %v", ErrInvalidControl, c.Position)
	}
	if math.IsNaN(c.Speed) || math.IsInf(c.Speed, 0) || c.Speed < 0 {
		return fmt.Errorf("%w: speed %v", ErrInvalidControl, c.Speed)
	}
	return nil
}

type Stop struct {
	Type string `json:"type"`
}

// Commands is the stop-then-move framing; each entry is a serialized
// hardware-control request.
type Commands struct {
	Commands []string `json:"commands"`
}

func NewCommandOK(id uint32) CommandOK {
	return CommandOK{Type: TypeCommandOK, ID: id}
}

func NewSetDeviceIndex(index *uint32) SetDeviceIndex {
	return SetDeviceIndex{Type: TypeSetDeviceIndex, Index: index}
}

func NewControl(position, speed float64, sampleIntervalMS uint32, final bool) Control {
	return Control{
		Type:             TypeControl,
		Position:         position,
		Speed:            speed,
		SampleIntervalMS: sampleIntervalMS,
		IsFinal:          final,
	}
}

// Heartbeat payloads per role. The controller reuses the commands envelope
// with no entries.
var (
	ControllerHeartbeat = []byte(`{"commands":[]}`)
	BridgeHeartbeat     = []byte(`{"type":"ping"}`)
)

// Encode marshals one outbound message, validating it when it knows how.
func Encode(msg any) ([]byte, error) {
	if v, ok := msg.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return json.Marshal(msg)
}

func isTyped(kind string) bool {
	switch strings.TrimSpace(kind) {
	case TypeStatus, TypeCommandOK, TypeSetDeviceIndex, TypeControl, TypeStop, TypePing:
		return true
	}
	return false
}

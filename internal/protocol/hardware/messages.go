package hardware

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

const (
	// HandshakeID is reserved for RequestServerInfo and never issued again.
	HandshakeID uint32 = 1

	DefaultClientName     = "WebToyClient"
	DefaultMessageVersion = 3
	DefaultEndpoint       = "ws://localhost:12345"

	CapabilityLinear = "LinearCmd"
	CapabilityStop   = "StopDeviceCmd"
)

var (
	ErrMalformedMessage = errors.New("hardware: malformed message")
	ErrInvalidCommand   = errors.New("hardware: invalid command")
	ErrUnknownRequest   = errors.New("hardware: unknown request type")
)

type RequestServerInfo struct {
	ID             uint32 `json:"Id"`
	ClientName     string `json:"ClientName"`
	MessageVersion uint32 `json:"MessageVersion"`
}

type RequestDeviceList struct {
	ID uint32 `json:"Id"`
}

type Vector struct {
	Index    uint32  `json:"Index"`
	Duration uint32  `json:"Duration"`
	Position float64 `json:"Position"`
}

type LinearCmd struct {
	ID          uint32   `json:"Id"`
	DeviceIndex uint32   `json:"DeviceIndex"`
	Vectors     []Vector `json:"Vectors"`
}

type StopDeviceCmd struct {
	ID          uint32 `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// Encode wraps one request as [{"<Name>": req}].
func Encode(req any) ([]byte, error) {
	var name string
	switch req.(type) {
	case RequestServerInfo, *RequestServerInfo:
		name = "RequestServerInfo"
	case RequestDeviceList, *RequestDeviceList:
		name = "RequestDeviceList"
	case LinearCmd, *LinearCmd:
		name = "LinearCmd"
	case StopDeviceCmd, *StopDeviceCmd:
		name = "StopDeviceCmd"
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownRequest, req)
	}
	return json.Marshal([]map[string]any{{name: req}})
}

// CommandKind distinguishes the two motion command envelopes.
type CommandKind int

const (
	KindStop CommandKind = iota
	KindMoveTo
)

func (k CommandKind) String() string {
	if k == KindMoveTo {
		return "move"
	}
	return "stop"
}

// Command is a motion command envelope before wire encoding.
type Command struct {
	ID          uint32
	DeviceIndex uint32
	Kind        CommandKind
	Position    float64
	DurationMS  uint32
}

func Stop(id, deviceIndex uint32) Command {
	return Command{ID: id, DeviceIndex: deviceIndex, Kind: KindStop}
}

func MoveTo(id, deviceIndex uint32, position float64, durationMS uint32) Command {
	return Command{ID: id, DeviceIndex: deviceIndex, Kind: KindMoveTo, Position: position, DurationMS: durationMS}
}

func (c Command) Validate() error {
	if c.ID == 0 || c.ID == HandshakeID {
		return fmt.Errorf("%w: id %d is reserved", ErrInvalidCommand, c.ID)
	}
	if c.Kind == KindMoveTo {
		if math.IsNaN(c.Position) || c.Position < 0 || c.Position > 1 {
			return fmt.Errorf("%w: position %v outside [0,1]", ErrInvalidCommand, c.Position)
		}
		if c.DurationMS == 0 {
			return fmt.Errorf("%w: zero duration", ErrInvalidCommand)
		}
	}
	return nil
}

// Encode renders the envelope as a LinearCmd or StopDeviceCmd request.
func (c Command) Encode() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Kind == KindStop {
		return Encode(StopDeviceCmd{ID: c.ID, DeviceIndex: c.DeviceIndex})
	}
	return Encode(LinearCmd{
		ID:          c.ID,
		DeviceIndex: c.DeviceIndex,
		Vectors:     []Vector{{Index: 0, Duration: c.DurationMS, Position: c.Position}},
	})
}

// IDSequence hands out command ids after the handshake id. It is owned by a
// single event loop.
type IDSequence struct {
	next uint32
}

func NewIDSequence() *IDSequence {
	return &IDSequence{next: HandshakeID + 1}
}

func (s *IDSequence) Next() uint32 {
	id := s.next
	s.next++
	return id
}

// Peek reports the id the next call to Next will return.
func (s *IDSequence) Peek() uint32 {
	return s.next
}

package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind is the shape-derived class of an inbound relay payload.
type Kind int

const (
	KindUnknown Kind = iota
	KindHeartbeat
	KindStatus
	KindCommandOK
	KindSetDeviceIndex
	KindControl
	KindStop
	KindCommands
	KindHardware
)

func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindStatus:
		return "status"
	case KindCommandOK:
		return "command_ok"
	case KindSetDeviceIndex:
		return "set_device_index"
	case KindControl:
		return "control"
	case KindStop:
		return "stop"
	case KindCommands:
		return "commands"
	case KindHardware:
		return "hardware"
	default:
		return "unknown"
	}
}

// Message is one decoded relay payload. Exactly one body field matching Kind
// is set; Raw always holds the original bytes.
type Message struct {
	Kind           Kind
	Status         *Status
	CommandOK      *CommandOK
	SetDeviceIndex *SetDeviceIndex
	Control        *Control
	Commands       []string
	Raw            []byte
}

type typeSniff struct {
	Type     *string           `json:"type"`
	Commands []json.RawMessage `json:"commands"`
}

// Decode classifies payload by shape. Objects with a recognized "type" are
// decoded into their body, {"commands": [...]} is the command-pair framing
// (empty means heartbeat), and any other array or untyped object is an
// opaque hardware command. A one-element array wrapping a typed object is
// unwrapped first.
func Decode(payload []byte) (Message, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return Message{}, fmt.Errorf("%w: empty payload", ErrMalformedMessage)
	}
	switch trimmed[0] {
	case '[':
		return decodeArray(trimmed)
	case '{':
		return decodeObject(trimmed)
	default:
		return Message{}, fmt.Errorf("%w: not a json object or array", ErrMalformedMessage)
	}
}

func decodeArray(raw []byte) (Message, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if len(items) == 1 {
		inner := bytes.TrimSpace(items[0])
		if len(inner) > 0 && inner[0] == '{' {
			var p typeSniff
			if err := json.Unmarshal(inner, &p); err == nil && p.Type != nil && isTyped(*p.Type) {
				return decodeObject(inner)
			}
		}
	}
	return Message{Kind: KindHardware, Raw: raw}, nil
}

func decodeObject(raw []byte) (Message, error) {
	var p typeSniff
	if err := json.Unmarshal(raw, &p); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	msg := Message{Raw: raw}

	if p.Type == nil {
		if p.Commands == nil {
			msg.Kind = KindHardware
			return msg, nil
		}
		if len(p.Commands) == 0 {
			msg.Kind = KindHeartbeat
			return msg, nil
		}
		cmds := make([]string, 0, len(p.Commands))
		for i, item := range p.Commands {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				return Message{}, fmt.Errorf("%w: commands[%d] is not a string", ErrMalformedMessage, i)
			}
			cmds = append(cmds, s)
		}
		msg.Kind = KindCommands
		msg.Commands = cmds
		return msg, nil
	}

	switch *p.Type {
	case TypePing:
		msg.Kind = KindHeartbeat
	case TypeStatus:
		var s Status
		if err := json.Unmarshal(raw, &s); err != nil {
			return Message{}, fmt.Errorf("%w: status: %v", ErrMalformedMessage, err)
		}
		if s.State == "" {
			return Message{}, fmt.Errorf("%w: status missing state", ErrMalformedMessage)
		}
		msg.Kind = KindStatus
		msg.Status = &s
	case TypeCommandOK:
		var ok CommandOK
		if err := json.Unmarshal(raw, &ok); err != nil {
			return Message{}, fmt.Errorf("%w: command_ok: %v", ErrMalformedMessage, err)
		}
		msg.Kind = KindCommandOK
		msg.CommandOK = &ok
	case TypeSetDeviceIndex:
		var sd SetDeviceIndex
		if err := json.Unmarshal(raw, &sd); err != nil {
			return Message{}, fmt.Errorf("%w: setDeviceIndex: %v", ErrMalformedMessage, err)
		}
		msg.Kind = KindSetDeviceIndex
		msg.SetDeviceIndex = &sd
	case TypeControl:
		var c Control
		if err := json.Unmarshal(raw, &c); err != nil {
			return Message{}, fmt.Errorf("%w: control: %v", ErrMalformedMessage, err)
		}
		if err := c.Validate(); err != nil {
			return Message{}, err
		}
		msg.Kind = KindControl
		msg.Control = &c
	case TypeStop:
		msg.Kind = KindStop
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, *p.Type)
	}
	return msg, nil
}

package hardware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

type ResponseKind int

const (
	RespUnknown ResponseKind = iota
	RespOk
	RespError
	RespServerInfo
	RespDeviceList
	RespDeviceAdded
	RespDeviceRemoved
	RespScanningFinished
)

func (k ResponseKind) String() string {
	switch k {
	case RespOk:
		return "Ok"
	case RespError:
		return "Error"
	case RespServerInfo:
		return "ServerInfo"
	case RespDeviceList:
		return "DeviceList"
	case RespDeviceAdded:
		return "DeviceAdded"
	case RespDeviceRemoved:
		return "DeviceRemoved"
	case RespScanningFinished:
		return "ScanningFinished"
	default:
		return "Unknown"
	}
}

type Ok struct {
	ID uint32 `json:"Id"`
}

type Error struct {
	ID           uint32 `json:"Id"`
	ErrorCode    int    `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
}

func (e Error) Error() string {
	return fmt.Sprintf("hardware: id=%d code=%d: %s", e.ID, e.ErrorCode, e.ErrorMessage)
}

type ServerInfo struct {
	ID             uint32 `json:"Id"`
	ServerName     string `json:"ServerName"`
	MessageVersion uint32 `json:"MessageVersion"`
	MaxPingTime    uint32 `json:"MaxPingTime"`
}

// DeviceInfo is a device entry as sent by the endpoint. DeviceMessages is an
// object keyed by message name in v2+ and a plain name list in v1.
type DeviceInfo struct {
	DeviceName     string          `json:"DeviceName"`
	DeviceIndex    uint32          `json:"DeviceIndex"`
	DeviceMessages json.RawMessage `json:"DeviceMessages"`
}

type DeviceList struct {
	ID      uint32       `json:"Id"`
	Devices []DeviceInfo `json:"Devices"`
}

type DeviceRemoved struct {
	ID          uint32 `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// Device is the bridge-side descriptor of one actuator.
type Device struct {
	Index        uint32
	Name         string
	Capabilities map[string]bool
}

func (d Device) Can(message string) bool {
	return d.Capabilities[message]
}

// CapabilityNames lists capabilities in sorted order.
func (d Device) CapabilityNames() []string {
	out := make([]string, 0, len(d.Capabilities))
	for name := range d.Capabilities {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (i DeviceInfo) Device() Device {
	return Device{
		Index:        i.DeviceIndex,
		Name:         i.DeviceName,
		Capabilities: parseCapabilities(i.DeviceMessages),
	}
}

func parseCapabilities(raw json.RawMessage) map[string]bool {
	caps := make(map[string]bool)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return caps
	}
	var byName map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byName); err == nil {
		for name := range byName {
			caps[name] = true
		}
		return caps
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		for _, name := range names {
			caps[name] = true
		}
	}
	return caps
}

// Response is one decoded endpoint message; the body matching Kind is set.
type Response struct {
	Kind          ResponseKind
	Name          string
	Ok            *Ok
	Error         *Error
	ServerInfo    *ServerInfo
	DeviceList    *DeviceList
	DeviceAdded   *DeviceInfo
	DeviceRemoved *DeviceRemoved
}

// Devices returns the descriptors carried by a DeviceList or DeviceAdded.
func (r Response) Devices() []Device {
	switch r.Kind {
	case RespDeviceList:
		out := make([]Device, 0, len(r.DeviceList.Devices))
		for _, info := range r.DeviceList.Devices {
			out = append(out, info.Device())
		}
		return out
	case RespDeviceAdded:
		return []Device{r.DeviceAdded.Device()}
	}
	return nil
}

// DecodeResponses splits one frame into its messages. Unrecognized message
// names decode as RespUnknown rather than failing the frame. A malformed item
// is skipped: the rest of the frame is still returned, alongside an error
// naming what was dropped.
func DecodeResponses(payload []byte) ([]Response, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	out := make([]Response, 0, len(items))
	var skipped []error
	for i, item := range items {
		if len(item) != 1 {
			skipped = append(skipped, fmt.Errorf("%w: item %d has %d keys", ErrMalformedMessage, i, len(item)))
			continue
		}
		for name, body := range item {
			resp, err := decodeOne(name, body)
			if err != nil {
				skipped = append(skipped, fmt.Errorf("%w: item %d %s: %v", ErrMalformedMessage, i, name, err))
				continue
			}
			out = append(out, resp)
		}
	}
	return out, errors.Join(skipped...)
}

func decodeOne(name string, body json.RawMessage) (Response, error) {
	resp := Response{Name: name}
	var err error
	switch name {
	case "Ok":
		resp.Kind = RespOk
		resp.Ok = &Ok{}
		err = json.Unmarshal(body, resp.Ok)
	case "Error":
		resp.Kind = RespError
		resp.Error = &Error{}
		err = json.Unmarshal(body, resp.Error)
	case "ServerInfo":
		resp.Kind = RespServerInfo
		resp.ServerInfo = &ServerInfo{}
		err = json.Unmarshal(body, resp.ServerInfo)
	case "DeviceList":
		resp.Kind = RespDeviceList
		resp.DeviceList = &DeviceList{}
		err = json.Unmarshal(body, resp.DeviceList)
	case "DeviceAdded":
		resp.Kind = RespDeviceAdded
		resp.DeviceAdded = &DeviceInfo{}
		err = json.Unmarshal(body, resp.DeviceAdded)
	case "DeviceRemoved":
		resp.Kind = RespDeviceRemoved
		resp.DeviceRemoved = &DeviceRemoved{}
		err = json.Unmarshal(body, resp.DeviceRemoved)
	case "ScanningFinished":
		resp.Kind = RespScanningFinished
	default:
		resp.Kind = RespUnknown
	}
	return resp, err
}

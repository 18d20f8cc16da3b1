package bridge

import (
	"errors"
	"math"
	"strings"

	"github.com/danmuck/strokectl/internal/observability"
	"github.com/danmuck/strokectl/internal/protocol/hardware"
	"github.com/danmuck/strokectl/internal/protocol/relay"
	"github.com/danmuck/strokectl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var ErrInvalidClientName = errors.New("bridge: client name required")

// Status is the bridge's local view of its hardware side.
type Status string

const (
	StatusIdle                 Status = "idle"
	StatusHandshaking          Status = "handshaking"
	StatusScanning             Status = "scanning"
	StatusWaitingDevice        Status = "waiting_device"
	StatusDeviceSelected       Status = "device_selected"
	StatusNoTarget             Status = "no_target"
	StatusHardwareDisconnected Status = "hardware_disconnected"
)

// Target says which channel an Effect is written to.
type Target int

const (
	ToHardware Target = iota
	ToRelay
)

func (t Target) String() string {
	if t == ToRelay {
		return "relay"
	}
	return "hardware"
}

// Effect is one outbound frame produced by a Core transition.
type Effect struct {
	Target  Target
	Payload []byte
}

type CoreConfig struct {
	ClientName     string
	MessageVersion uint32
	Policy         SelectionPolicy
}

func DefaultCoreConfig() CoreConfig {
	return CoreConfig{
		ClientName:     hardware.DefaultClientName,
		MessageVersion: hardware.DefaultMessageVersion,
		Policy:         PolicyLinearOrFirst,
	}
}

func (c CoreConfig) Validate() error {
	if strings.TrimSpace(c.ClientName) == "" {
		return ErrInvalidClientName
	}
	_, err := ParseSelectionPolicy(string(c.Policy))
	return err
}

// Core is the bridge state machine. Every handler mutates Core and returns
// the frames to send; Core performs no I/O and is owned by one goroutine.
type Core struct {
	cfg      CoreConfig
	ids      *hardware.IDSequence
	internal map[uint32]string
	state    *session.StateTracker

	selected     *hardware.Device
	deviceReady  bool
	status       Status
	lastPosition float64
	hardwareOpen bool
	relayOpen    bool
}

func NewCore(cfg CoreConfig) *Core {
	if cfg.Policy == "" {
		cfg.Policy = PolicyLinearOrFirst
	}
	return &Core{
		cfg:          cfg,
		ids:          hardware.NewIDSequence(),
		internal:     make(map[uint32]string),
		state:        session.NewStateTracker(),
		deviceReady:  true,
		status:       StatusIdle,
		lastPosition: -1,
	}
}

// HardwareOpened starts the handshake on a fresh endpoint connection.
func (c *Core) HardwareOpened() []Effect {
	c.hardwareOpen = true
	c.status = StatusHandshaking
	c.internal = map[uint32]string{hardware.HandshakeID: "RequestServerInfo"}
	payload, err := hardware.Encode(hardware.RequestServerInfo{
		ID:             hardware.HandshakeID,
		ClientName:     c.cfg.ClientName,
		MessageVersion: c.cfg.MessageVersion,
	})
	if err != nil {
		log.Error().Err(err).Msg("bridge.Core.HardwareOpened encode handshake")
		return nil
	}
	log.Info().
		Str("client_name", c.cfg.ClientName).
		Uint32("message_version", c.cfg.MessageVersion).
		Msg("bridge.Core handshake")
	return []Effect{{Target: ToHardware, Payload: payload}}
}

// HardwareClosed drops the selection; the device is unreachable until the
// endpoint reconnects and reports it again.
func (c *Core) HardwareClosed() []Effect {
	c.hardwareOpen = false
	c.status = StatusHardwareDisconnected
	c.internal = make(map[uint32]string)
	if c.selected == nil {
		return nil
	}
	log.Warn().Uint32("device_index", c.selected.Index).Msg("bridge.Core hardware lost; selection cleared")
	return c.clearSelection()
}

// RelayOpened resets the relay-pushed state and re-announces the selection,
// which the relay forgets across bridge reconnects.
func (c *Core) RelayOpened() []Effect {
	c.relayOpen = true
	c.state.Reset()
	if c.selected == nil {
		return nil
	}
	return c.announce(&c.selected.Index)
}

func (c *Core) RelayClosed() {
	c.relayOpen = false
}

// Shutdown stops the selected device if the endpoint is still reachable.
func (c *Core) Shutdown() []Effect {
	if c.selected == nil || !c.hardwareOpen {
		return nil
	}
	payload, err := hardware.Stop(c.ids.Next(), c.selected.Index).Encode()
	if err != nil {
		return nil
	}
	return []Effect{{Target: ToHardware, Payload: payload}}
}

// HandleHardware applies one frame from the hardware endpoint.
func (c *Core) HandleHardware(payload []byte) []Effect {
	resps, err := hardware.DecodeResponses(payload)
	if err != nil {
		log.Warn().Err(err).Int("kept", len(resps)).Msg("bridge.Core hardware items discarded")
	}
	var out []Effect
	for _, resp := range resps {
		out = append(out, c.handleResponse(resp)...)
	}
	return out
}

func (c *Core) handleResponse(resp hardware.Response) []Effect {
	switch resp.Kind {
	case hardware.RespOk:
		id := resp.Ok.ID
		if name, ok := c.internal[id]; ok {
			delete(c.internal, id)
			log.Debug().Uint32("id", id).Str("request", name).Msg("bridge.Core internal request ok")
			return nil
		}
		c.deviceReady = true
		observability.RecordBridgeAck()
		payload, err := relay.Encode(relay.NewCommandOK(id))
		if err != nil {
			return nil
		}
		return []Effect{{Target: ToRelay, Payload: payload}}

	case hardware.RespError:
		e := resp.Error
		name := c.internal[e.ID]
		delete(c.internal, e.ID)
		observability.RecordHardwareError(e.ErrorCode)
		log.Warn().
			Uint32("id", e.ID).
			Int("code", e.ErrorCode).
			Str("request", name).
			Str("message", e.ErrorMessage).
			Msg("bridge.Core hardware error")
		return nil

	case hardware.RespServerInfo:
		c.settle("RequestServerInfo")
		id := c.ids.Next()
		c.internal[id] = "RequestDeviceList"
		c.status = StatusScanning
		log.Info().
			Str("server", resp.ServerInfo.ServerName).
			Uint32("message_version", resp.ServerInfo.MessageVersion).
			Uint32("id", id).
			Msg("bridge.Core server info; requesting devices")
		payload, err := hardware.Encode(hardware.RequestDeviceList{ID: id})
		if err != nil {
			return nil
		}
		return []Effect{{Target: ToHardware, Payload: payload}}

	case hardware.RespDeviceList, hardware.RespDeviceAdded:
		if resp.Kind == hardware.RespDeviceList {
			c.settle("RequestDeviceList")
		}
		if c.selected != nil {
			log.Debug().Str("kind", resp.Kind.String()).Msg("bridge.Core device already selected; ignoring")
			return nil
		}
		return c.selectFrom(resp.Devices())

	case hardware.RespDeviceRemoved:
		idx := resp.DeviceRemoved.DeviceIndex
		if c.selected == nil || c.selected.Index != idx {
			log.Debug().Uint32("device_index", idx).Msg("bridge.Core unselected device removed")
			return nil
		}
		log.Warn().Uint32("device_index", idx).Msg("bridge.Core selected device removed")
		effects := c.clearSelection()
		c.status = StatusNoTarget
		return effects

	default:
		log.Debug().Str("name", resp.Name).Msg("bridge.Core hardware message ignored")
		return nil
	}
}

// settle forgets an internal request once its answer arrives, so a later
// forwarded command reusing that id has its Ok reported.
func (c *Core) settle(request string) {
	for id, name := range c.internal {
		if name == request {
			delete(c.internal, id)
		}
	}
}

func (c *Core) selectFrom(devices []hardware.Device) []Effect {
	dev, ok := c.cfg.Policy.Select(devices)
	if !ok {
		observability.RecordDeviceSelection(string(c.cfg.Policy), "none")
		if c.status != StatusNoTarget {
			c.status = StatusWaitingDevice
		}
		log.Info().
			Int("devices", len(devices)).
			Str("policy", string(c.cfg.Policy)).
			Msg("bridge.Core no device selected")
		return nil
	}
	c.selected = &dev
	c.status = StatusDeviceSelected
	c.deviceReady = true
	c.lastPosition = -1
	outcome := "linear"
	if !dev.Can(hardware.CapabilityLinear) {
		outcome = "fallback"
	}
	observability.RecordDeviceSelection(string(c.cfg.Policy), outcome)
	log.Info().
		Uint32("device_index", dev.Index).
		Str("name", dev.Name).
		Strs("capabilities", dev.CapabilityNames()).
		Str("outcome", outcome).
		Msg("bridge.Core device selected")
	return c.announce(&dev.Index)
}

func (c *Core) clearSelection() []Effect {
	c.selected = nil
	c.lastPosition = -1
	return c.announce(nil)
}

func (c *Core) announce(index *uint32) []Effect {
	var idx *uint32
	if index != nil {
		v := *index
		idx = &v
	}
	payload, err := relay.Encode(relay.NewSetDeviceIndex(idx))
	if err != nil {
		return nil
	}
	return []Effect{{Target: ToRelay, Payload: payload}}
}

// HandleRelay applies one frame from the relay.
func (c *Core) HandleRelay(payload []byte) []Effect {
	msg, err := relay.Decode(payload)
	if err != nil {
		log.Warn().Err(err).Msg("bridge.Core relay message discarded")
		return nil
	}
	switch msg.Kind {
	case relay.KindHeartbeat:
		return nil
	case relay.KindStatus:
		c.applyStatus(msg.Status)
		return nil
	case relay.KindCommands:
		var out []Effect
		for _, cmd := range msg.Commands {
			out = append(out, c.forward("commands", []byte(cmd))...)
		}
		return out
	case relay.KindHardware:
		return c.forward("hardware", msg.Raw)
	case relay.KindControl:
		return c.translateControl(*msg.Control)
	case relay.KindStop:
		return c.translateStop()
	default:
		log.Debug().Str("kind", msg.Kind.String()).Msg("bridge.Core relay message ignored")
		return nil
	}
}

func (c *Core) applyStatus(s *relay.Status) {
	next, err := session.ParseState(s.State)
	if err != nil {
		log.Warn().Err(err).Msg("bridge.Core status discarded")
		return
	}
	prev, changed := c.state.Apply(next)
	if !changed {
		return
	}
	ev := log.Info()
	if !session.Expected(prev, next) {
		ev = log.Debug().Bool("unexpected", true)
	}
	ev.Str("from", string(prev)).Str("to", string(next)).Msg("bridge.Core session state")
}

// forward relays a hardware request verbatim. There is no pacing here:
// the sender waits for command_ok before sending the next command.
func (c *Core) forward(kind string, payload []byte) []Effect {
	if c.selected == nil {
		observability.RecordBridgeCommand(kind, "dropped")
		log.Warn().Str("kind", kind).Msg("bridge.Core command dropped: no device selected")
		return nil
	}
	c.deviceReady = false
	observability.RecordBridgeCommand(kind, "forwarded")
	return []Effect{{Target: ToHardware, Payload: payload}}
}

func (c *Core) translateControl(ctl relay.Control) []Effect {
	if c.selected == nil {
		observability.RecordBridgeCommand("control", "dropped")
		log.Warn().Msg("bridge.Core control dropped: no device selected")
		return nil
	}
	pos := math.Max(0, math.Min(1, ctl.Position))
	duration := LinearDuration(pos, ctl.Speed, c.lastPosition, ctl.IsFinal)
	cmd := hardware.MoveTo(c.ids.Next(), c.selected.Index, pos, duration)
	payload, err := cmd.Encode()
	if err != nil {
		log.Warn().Err(err).Msg("bridge.Core control discarded")
		return nil
	}
	c.lastPosition = pos
	c.deviceReady = false
	observability.RecordBridgeCommand("control", "forwarded")
	log.Debug().
		Uint32("id", cmd.ID).
		Float64("position", pos).
		Float64("speed", ctl.Speed).
		Uint32("duration_ms", duration).
		Bool("final", ctl.IsFinal).
		Msg("bridge.Core control translated")
	return []Effect{{Target: ToHardware, Payload: payload}}
}

func (c *Core) translateStop() []Effect {
	if c.selected == nil {
		observability.RecordBridgeCommand("stop", "dropped")
		log.Warn().Msg("bridge.Core stop dropped: no device selected")
		return nil
	}
	payload, err := hardware.Stop(c.ids.Next(), c.selected.Index).Encode()
	if err != nil {
		return nil
	}
	c.deviceReady = false
	observability.RecordBridgeCommand("stop", "forwarded")
	return []Effect{{Target: ToHardware, Payload: payload}}
}

// Snapshot is a copy of Core state for status reporting.
type Snapshot struct {
	Status       Status          `json:"status"`
	SessionState session.State   `json:"session_state"`
	Policy       SelectionPolicy `json:"policy"`
	Device       *DeviceSnapshot `json:"device,omitempty"`
	DeviceReady  bool            `json:"device_ready"`
	NextID       uint32          `json:"next_id"`
	HardwareOpen bool            `json:"hardware_open"`
	RelayOpen    bool            `json:"relay_open"`
}

type DeviceSnapshot struct {
	Index        uint32   `json:"index"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

func (c *Core) Snapshot() Snapshot {
	s := Snapshot{
		Status:       c.status,
		SessionState: c.state.Current(),
		Policy:       c.cfg.Policy,
		DeviceReady:  c.deviceReady,
		NextID:       c.ids.Peek(),
		HardwareOpen: c.hardwareOpen,
		RelayOpen:    c.relayOpen,
	}
	if c.selected != nil {
		s.Device = &DeviceSnapshot{
			Index:        c.selected.Index,
			Name:         c.selected.Name,
			Capabilities: c.selected.CapabilityNames(),
		}
	}
	return s
}

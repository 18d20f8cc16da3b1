package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/danmuck/strokectl/internal/protocol/hardware"
	"github.com/danmuck/strokectl/internal/protocol/relay"
	"github.com/danmuck/strokectl/internal/protocol/session"
	"github.com/danmuck/strokectl/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrRelayURLRequired    = errors.New("bridge: relay url required")
	ErrHardwareURLRequired = errors.New("bridge: hardware url required")
	ErrRelayUnavailable    = errors.New("bridge: relay unavailable")
	ErrHardwareUnavailable = errors.New("bridge: hardware endpoint unavailable")
)

// Config configures one bridge session. RelayURL is the full connect URL,
// already tagged with role and session key.
type Config struct {
	InstanceID  string
	RelayURL    string
	HardwareURL string
	Relay       session.Config
	Hardware    session.Config
	Core        CoreConfig
}

func DefaultConfig() Config {
	return Config{
		HardwareURL: hardware.DefaultEndpoint,
		Relay:       session.DefaultConfig(),
		Hardware:    session.DefaultConfig(),
		Core:        DefaultCoreConfig(),
	}
}

// Bridge owns the relay and hardware channels of one bridge session and
// drives Core from a single event loop.
type Bridge struct {
	cfg      Config
	core     *Core
	relay    *transport.Channel
	hardware *transport.Channel
	snapshot atomic.Pointer[Snapshot]
}

func New(cfg Config) (*Bridge, error) {
	if strings.TrimSpace(cfg.RelayURL) == "" {
		return nil, ErrRelayURLRequired
	}
	if strings.TrimSpace(cfg.HardwareURL) == "" {
		return nil, ErrHardwareURLRequired
	}
	if err := cfg.Core.Validate(); err != nil {
		return nil, err
	}
	b := &Bridge{
		cfg:  cfg,
		core: NewCore(cfg.Core),
		relay: transport.New(transport.Config{
			Name:      "relay",
			Session:   cfg.Relay,
			Heartbeat: relay.BridgeHeartbeat,
		}, nil),
		hardware: transport.New(transport.Config{
			Name:    "hardware",
			Session: cfg.Hardware,
		}, nil),
	}
	b.publish()
	return b, nil
}

func (b *Bridge) NodeID() string {
	return b.cfg.InstanceID
}

func (b *Bridge) Kind() string {
	return "bridge"
}

// Status returns the last published snapshot; safe from any goroutine.
func (b *Bridge) Status() any {
	return *b.snapshot.Load()
}

func (b *Bridge) Snapshot() Snapshot {
	return *b.snapshot.Load()
}

// Run connects both channels and processes events until ctx ends or one
// channel gives up reconnecting.
func (b *Bridge) Run(ctx context.Context) error {
	// channels outlive ctx so shutdown can still stop the device
	chCtx := context.WithoutCancel(ctx)
	if err := b.relay.Connect(chCtx, b.cfg.RelayURL); err != nil {
		return fmt.Errorf("connect relay: %w", err)
	}
	if err := b.hardware.Connect(chCtx, b.cfg.HardwareURL); err != nil {
		_ = b.relay.Close()
		return fmt.Errorf("connect hardware: %w", err)
	}
	log.Info().
		Str("instance", b.cfg.InstanceID).
		Str("hardware", b.cfg.HardwareURL).
		Str("policy", string(b.cfg.Core.Policy)).
		Msg("bridge.Bridge.Run started")
	return b.loop(ctx)
}

func (b *Bridge) loop(ctx context.Context) error {
	relayEvents := b.relay.Events()
	hwEvents := b.hardware.Events()
	defer b.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-relayEvents:
			if !ok {
				relayEvents = nil
				continue
			}
			if ev.Kind == transport.EventState && ev.Terminal && ctx.Err() == nil {
				b.onRelay(ev)
				return ErrRelayUnavailable
			}
			b.onRelay(ev)

		case ev, ok := <-hwEvents:
			if !ok {
				hwEvents = nil
				continue
			}
			if ev.Kind == transport.EventState && ev.Terminal && ctx.Err() == nil {
				b.onHardware(ev)
				return ErrHardwareUnavailable
			}
			b.onHardware(ev)
		}
	}
}

func (b *Bridge) onRelay(ev transport.Event) {
	var effects []Effect
	switch ev.Kind {
	case transport.EventMessage:
		effects = b.core.HandleRelay(ev.Payload)
	case transport.EventState:
		switch ev.State {
		case session.Connected:
			effects = b.core.RelayOpened()
		case session.Disconnected:
			b.core.RelayClosed()
		}
	}
	b.apply(effects)
}

func (b *Bridge) onHardware(ev transport.Event) {
	var effects []Effect
	switch ev.Kind {
	case transport.EventMessage:
		effects = b.core.HandleHardware(ev.Payload)
	case transport.EventState:
		switch ev.State {
		case session.Connected:
			effects = b.core.HardwareOpened()
		case session.Disconnected:
			effects = b.core.HardwareClosed()
		}
	}
	b.apply(effects)
}

// apply writes effects in order. Send failures are already logged by the
// channel and are not retried.
func (b *Bridge) apply(effects []Effect) {
	for _, e := range effects {
		ch := b.hardware
		if e.Target == ToRelay {
			ch = b.relay
		}
		_ = ch.Send(e.Payload)
	}
	b.publish()
}

func (b *Bridge) publish() {
	s := b.core.Snapshot()
	b.snapshot.Store(&s)
}

func (b *Bridge) shutdown() {
	for _, e := range b.core.Shutdown() {
		if e.Target == ToHardware {
			_ = b.hardware.Send(e.Payload)
		}
	}
	_ = b.hardware.Close()
	_ = b.relay.Close()
	log.Info().Str("instance", b.cfg.InstanceID).Msg("bridge.Bridge stopped")
}

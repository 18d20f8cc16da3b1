package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/strokectl/internal/motion"
	"github.com/danmuck/strokectl/internal/protocol/relay"
	"github.com/danmuck/strokectl/internal/protocol/session"
	"github.com/danmuck/strokectl/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrRelayURLRequired = errors.New("controller: relay url required")
	ErrRelayUnavailable = errors.New("controller: relay unavailable")
	ErrNotRunning       = errors.New("controller: not running")
	ErrInvalidInput     = errors.New("controller: invalid input")
)

const (
	DefaultMomentumInterval = 20 * time.Millisecond
	inputBuffer             = 64
)

type Config struct {
	InstanceID       string
	RelayURL         string
	Relay            session.Config
	Engine           motion.EngineConfig
	Surface          motion.Surface
	FrameInterval    time.Duration
	MomentumInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Relay:            session.DefaultConfig(),
		Engine:           motion.DefaultEngineConfig(),
		Surface:          motion.Surface{Top: 0, Height: 1},
		FrameInterval:    motion.DefaultFrameInterval,
		MomentumInterval: DefaultMomentumInterval,
	}
}

// request runs fn on the event loop and reports its error back.
type request struct {
	fn    func(now time.Time) ([][]byte, error)
	reply chan error
}

// Controller owns the relay channel and the motion engine of one controller
// session. Engine state is only touched by the event loop.
type Controller struct {
	cfg    Config
	engine *motion.Engine
	relay  *transport.Channel
	inputs chan request

	running  atomic.Bool
	done     chan struct{}
	snapshot atomic.Pointer[Snapshot]

	frameTick    *time.Ticker
	sendTick     *time.Ticker
	sendRate     time.Duration
	momentumTick *time.Ticker
}

func New(cfg Config) (*Controller, error) {
	if strings.TrimSpace(cfg.RelayURL) == "" {
		return nil, ErrRelayURLRequired
	}
	if _, err := cfg.Surface.Normalize(cfg.Surface.Top); err != nil {
		return nil, err
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = motion.DefaultFrameInterval
	}
	if cfg.MomentumInterval <= 0 {
		cfg.MomentumInterval = DefaultMomentumInterval
	}
	engine, err := motion.NewEngine(cfg.Engine)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:    cfg,
		engine: engine,
		relay: transport.New(transport.Config{
			Name:      "relay",
			Session:   cfg.Relay,
			Heartbeat: relay.ControllerHeartbeat,
		}, nil),
		inputs: make(chan request, inputBuffer),
		done:   make(chan struct{}),
	}
	c.publish()
	return c, nil
}

func (c *Controller) NodeID() string {
	return c.cfg.InstanceID
}

func (c *Controller) Kind() string {
	return "controller"
}

func (c *Controller) Status() any {
	return *c.snapshot.Load()
}

func (c *Controller) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

// Run connects to the relay and runs the event loop until ctx ends or the
// relay gives up reconnecting.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.relay.Connect(context.WithoutCancel(ctx), c.cfg.RelayURL); err != nil {
		return fmt.Errorf("connect relay: %w", err)
	}
	c.running.Store(true)
	log.Info().
		Str("instance", c.cfg.InstanceID).
		Str("model", string(c.engine.Model())).
		Msg("controller.Controller.Run started")
	return c.loop(ctx)
}

func (c *Controller) loop(ctx context.Context) error {
	events := c.relay.Events()
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if c.onRelay(ev) && ctx.Err() == nil {
				return ErrRelayUnavailable
			}

		case req := <-c.inputs:
			out, err := req.fn(time.Now())
			c.write(out)
			req.reply <- err

		case now := <-tickC(c.frameTick):
			c.write(c.engine.Tick(motion.TickFrame, now))
		case now := <-tickC(c.sendTick):
			c.write(c.engine.Tick(motion.TickSend, now))
		case now := <-tickC(c.momentumTick):
			c.write(c.engine.Tick(motion.TickMomentum, now))
		}
		c.reconcile()
		c.publish()
	}
}

// onRelay applies one channel event and reports whether it was terminal.
func (c *Controller) onRelay(ev transport.Event) bool {
	switch ev.Kind {
	case transport.EventMessage:
		c.engine.HandleRelay(ev.Payload, time.Now())
	case transport.EventState:
		if ev.State == session.Connected {
			c.engine.RelayOpened()
		}
		return ev.State == session.Disconnected && ev.Terminal
	}
	return false
}

func (c *Controller) write(payloads [][]byte) {
	for _, p := range payloads {
		_ = c.relay.Send(p)
	}
}

// reconcile starts and stops tickers to match what the smoother needs.
func (c *Controller) reconcile() {
	want := c.engine.Timers()
	c.frameTick = toggle(c.frameTick, want.Frame, c.cfg.FrameInterval)
	c.momentumTick = toggle(c.momentumTick, want.Momentum, c.cfg.MomentumInterval)

	rate := c.engine.SampleInterval()
	if c.sendTick != nil && rate != c.sendRate {
		c.sendTick.Reset(rate)
	}
	c.sendRate = rate
	c.sendTick = toggle(c.sendTick, want.Send, rate)
}

func toggle(t *time.Ticker, want bool, every time.Duration) *time.Ticker {
	switch {
	case want && t == nil:
		return time.NewTicker(every)
	case !want && t != nil:
		t.Stop()
		return nil
	}
	return t
}

func tickC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (c *Controller) shutdown() {
	c.running.Store(false)
	close(c.done)
	c.write(c.engine.Stop())
	for _, t := range []*time.Ticker{c.frameTick, c.sendTick, c.momentumTick} {
		if t != nil {
			t.Stop()
		}
	}
	c.frameTick, c.sendTick, c.momentumTick = nil, nil, nil
	_ = c.relay.Close()
	c.publish()
	log.Info().Str("instance", c.cfg.InstanceID).Msg("controller.Controller stopped")
}

func (c *Controller) publish() {
	s := Snapshot{
		Instance: c.cfg.InstanceID,
		Relay:    c.relay.State().String(),
		Running:  c.running.Load(),
		Engine:   c.engine.Snapshot(),
	}
	c.snapshot.Store(&s)
}

// do hands fn to the event loop and waits for it to run.
func (c *Controller) do(ctx context.Context, fn func(now time.Time) ([][]byte, error)) error {
	if !c.running.Load() {
		return ErrNotRunning
	}
	req := request{fn: fn, reply: make(chan error, 1)}
	select {
	case c.inputs <- req:
	case <-c.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-c.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Normalize maps a surface y coordinate to a position in [0,1].
func (c *Controller) Normalize(y float64) (float64, error) {
	return c.cfg.Surface.Normalize(y)
}

func (c *Controller) PointerDown(ctx context.Context, pos float64) error {
	if err := validPosition(pos); err != nil {
		return err
	}
	return c.do(ctx, func(now time.Time) ([][]byte, error) {
		return c.engine.Press(pos, now), nil
	})
}

func (c *Controller) PointerMove(ctx context.Context, pos float64) error {
	if err := validPosition(pos); err != nil {
		return err
	}
	return c.do(ctx, func(now time.Time) ([][]byte, error) {
		return c.engine.Drag(pos, now), nil
	})
}

func (c *Controller) PointerUp(ctx context.Context) error {
	return c.do(ctx, func(now time.Time) ([][]byte, error) {
		return c.engine.Release(now), nil
	})
}

func (c *Controller) Stop(ctx context.Context) error {
	return c.do(ctx, func(time.Time) ([][]byte, error) {
		return c.engine.Stop(), nil
	})
}

// SetStroke moves either handle; a nil value leaves that handle alone. With
// both given the range is replaced as a whole; alone, a handle is pinned at
// the other one.
func (c *Controller) SetStroke(ctx context.Context, lo, hi *float64) (motion.StrokeRange, error) {
	var out motion.StrokeRange
	for _, v := range []*float64{lo, hi} {
		if v != nil {
			if err := validPosition(*v); err != nil {
				return out, err
			}
		}
	}
	if lo != nil && hi != nil {
		if *lo > *hi {
			return out, fmt.Errorf("%w: min %v above max %v", ErrInvalidInput, *lo, *hi)
		}
		err := c.do(ctx, func(time.Time) ([][]byte, error) {
			var err error
			out, err = c.engine.SetStrokeRange(motion.StrokeRange{Min: *lo, Max: *hi})
			return nil, err
		})
		return out, err
	}
	err := c.do(ctx, func(time.Time) ([][]byte, error) {
		out = c.engine.Snapshot().Range
		if lo != nil {
			out = c.engine.SetStrokeMin(*lo)
		}
		if hi != nil {
			out = c.engine.SetStrokeMax(*hi)
		}
		return nil, nil
	})
	return out, err
}

func (c *Controller) SetSpeedClamp(ctx context.Context, v float64) error {
	return c.do(ctx, func(time.Time) ([][]byte, error) {
		return nil, c.engine.SetSpeedClamp(motion.SpeedClamp(v))
	})
}

func (c *Controller) SetSampleInterval(ctx context.Context, d time.Duration) error {
	return c.do(ctx, func(time.Time) ([][]byte, error) {
		return nil, c.engine.SetSampleInterval(d)
	})
}

func validPosition(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: position %v outside [0,1]", ErrInvalidInput, v)
	}
	return nil
}

// Snapshot is the controller status published for HTTP.
type Snapshot struct {
	Instance string          `json:"instance"`
	Relay    string          `json:"relay"`
	Running  bool            `json:"running"`
	Engine   motion.Snapshot `json:"engine"`
}

package motion

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/strokectl/internal/observability"
	"github.com/danmuck/strokectl/internal/protocol/hardware"
	"github.com/danmuck/strokectl/internal/protocol/relay"
	"github.com/danmuck/strokectl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var ErrInvalidSampleInterval = errors.New("motion: sample interval must be positive")

const (
	DefaultSampleInterval = 50 * time.Millisecond
	DefaultFrameInterval  = 16 * time.Millisecond
	// SpringMoveDurationMS is the fixed LinearCmd duration of spring steps.
	SpringMoveDurationMS = 50

	ackTimeout = 10 * time.Second
)

type EngineConfig struct {
	Model          Model
	Range          StrokeRange
	SpeedClamp     SpeedClamp
	SampleInterval time.Duration
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Model:          ModelSpring,
		Range:          DefaultStrokeRange(),
		SpeedClamp:     DefaultSpeedClamp,
		SampleInterval: DefaultSampleInterval,
	}
}

func (c EngineConfig) Validate() error {
	if _, err := ParseModel(string(c.Model)); err != nil {
		return err
	}
	if err := c.Range.Validate(); err != nil {
		return err
	}
	if err := c.SpeedClamp.Validate(); err != nil {
		return err
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSampleInterval, c.SampleInterval)
	}
	return nil
}

// Engine is the controller-side motion state machine. Input and tick
// handlers return the relay payloads to send; Engine performs no I/O.
type Engine struct {
	cfg      EngineConfig
	smoother Smoother
	ids      *hardware.IDSequence
	state    *session.StateTracker

	deviceIndex *uint32
	pending     map[uint32]time.Time
	lastAck     uint32
	emitted     uint64
	suppressed  uint64
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Model == "" {
		cfg.Model = ModelSpring
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sm, err := NewSmoother(cfg.Model)
	if err != nil {
		return nil, err
	}
	return NewEngineWith(cfg, sm), nil
}

// NewEngineWith uses a caller-built smoother, for tuned constants.
func NewEngineWith(cfg EngineConfig, sm Smoother) *Engine {
	cfg.Model = sm.Model()
	sm.Limit(cfg.SpeedClamp)
	return &Engine{
		cfg:      cfg,
		smoother: sm,
		ids:      hardware.NewIDSequence(),
		state:    session.NewStateTracker(),
		pending:  make(map[uint32]time.Time),
	}
}

func (e *Engine) Model() Model { return e.cfg.Model }

func (e *Engine) Timers() Timers { return e.smoother.Timers() }

func (e *Engine) SampleInterval() time.Duration { return e.cfg.SampleInterval }

func (e *Engine) Press(pos float64, now time.Time) [][]byte {
	e.smoother.Press(pos, now)
	return nil
}

func (e *Engine) Drag(pos float64, now time.Time) [][]byte {
	e.smoother.Drag(pos, now)
	return nil
}

func (e *Engine) Release(now time.Time) [][]byte {
	return e.emit(e.smoother.Release(now), now)
}

func (e *Engine) Tick(kind TickKind, now time.Time) [][]byte {
	if kind == TickFrame {
		e.expireAcks(now)
	}
	return e.emit(e.smoother.Tick(kind, now), now)
}

// Stop builds a stop control, subject to the same gate as motion.
func (e *Engine) Stop() [][]byte {
	if !e.ready() {
		e.suppress(1)
		return nil
	}
	payload, err := relay.Encode(relay.Stop{Type: relay.TypeStop})
	if err != nil {
		return nil
	}
	observability.RecordMotionCommand(string(e.cfg.Model), "stop")
	return [][]byte{payload}
}

func (e *Engine) SetStrokeMin(v float64) StrokeRange {
	e.cfg.Range.SetMin(v)
	return e.cfg.Range
}

func (e *Engine) SetStrokeMax(v float64) StrokeRange {
	e.cfg.Range.SetMax(v)
	return e.cfg.Range
}

// SetStrokeRange moves both handles at once, so neither is pinned by the
// other's old value.
func (e *Engine) SetStrokeRange(r StrokeRange) (StrokeRange, error) {
	if err := r.Validate(); err != nil {
		return e.cfg.Range, err
	}
	e.cfg.Range = r
	return e.cfg.Range, nil
}

func (e *Engine) SetSpeedClamp(c SpeedClamp) error {
	if err := c.Validate(); err != nil {
		return err
	}
	e.cfg.SpeedClamp = c
	e.smoother.Limit(c)
	return nil
}

func (e *Engine) SetSampleInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSampleInterval, d)
	}
	e.cfg.SampleInterval = d
	return nil
}

// RelayOpened resets relay-pushed state after a reconnect.
func (e *Engine) RelayOpened() {
	e.state.Reset()
	e.deviceIndex = nil
}

// HandleRelay applies one inbound relay frame. The controller only acts on
// status pushes and acks.
func (e *Engine) HandleRelay(payload []byte, now time.Time) {
	msg, err := relay.Decode(payload)
	if err != nil {
		log.Warn().Err(err).Msg("motion.Engine relay message discarded")
		return
	}
	switch msg.Kind {
	case relay.KindStatus:
		e.applyStatus(msg.Status)
	case relay.KindCommandOK:
		e.ack(msg.CommandOK.ID, now)
	case relay.KindHeartbeat:
	default:
		log.Debug().Str("kind", msg.Kind.String()).Msg("motion.Engine relay message ignored")
	}
}

func (e *Engine) applyStatus(s *relay.Status) {
	next, err := session.ParseState(s.State)
	if err != nil {
		log.Warn().Err(err).Msg("motion.Engine status discarded")
		return
	}
	prev, changed := e.state.Apply(next)
	switch {
	case next == session.StateDeviceReady && s.DeviceIndex != nil:
		idx := *s.DeviceIndex
		e.deviceIndex = &idx
	case next != session.StateDeviceReady:
		e.deviceIndex = nil
	}
	if !changed {
		return
	}
	ev := log.Info()
	if !session.Expected(prev, next) {
		ev = log.Debug().Bool("unexpected", true)
	}
	ev.Str("from", string(prev)).Str("to", string(next)).Msg("motion.Engine session state")
}

func (e *Engine) ack(id uint32, now time.Time) {
	e.lastAck = id
	sent, ok := e.pending[id]
	if !ok {
		log.Debug().Uint32("id", id).Msg("motion.Engine unmatched ack")
		return
	}
	delete(e.pending, id)
	observability.RecordAckLatency(string(e.cfg.Model), now.Sub(sent))
}

func (e *Engine) expireAcks(now time.Time) {
	for id, sent := range e.pending {
		if now.Sub(sent) > ackTimeout {
			delete(e.pending, id)
		}
	}
}

// ready is the emission gate: the relay must report device_ready, and the
// spring model also needs the device index it addresses directly.
func (e *Engine) ready() bool {
	if !e.state.DeviceReady() {
		return false
	}
	return e.cfg.Model != ModelSpring || e.deviceIndex != nil
}

func (e *Engine) suppress(n int) {
	e.suppressed += uint64(n)
	for i := 0; i < n; i++ {
		observability.RecordMotionCommand(string(e.cfg.Model), "suppressed")
	}
}

func (e *Engine) emit(steps []Step, now time.Time) [][]byte {
	if len(steps) == 0 {
		return nil
	}
	if !e.ready() {
		e.suppress(len(steps))
		return nil
	}
	out := make([][]byte, 0, len(steps))
	for _, st := range steps {
		var (
			payload []byte
			err     error
		)
		if e.cfg.Model == ModelSpring {
			payload, err = e.frameSpring(st, now)
		} else {
			payload, err = e.frameControl(st)
		}
		if err != nil {
			log.Warn().Err(err).Msg("motion.Engine step discarded")
			observability.RecordMotionCommand(string(e.cfg.Model), "invalid")
			continue
		}
		e.emitted++
		observability.RecordMotionCommand(string(e.cfg.Model), "emitted")
		out = append(out, payload)
	}
	return out
}

// frameSpring wraps a step as a stop then move pair addressed to the
// device; the stop id is always lower than the move id.
func (e *Engine) frameSpring(st Step, now time.Time) ([]byte, error) {
	idx := *e.deviceIndex
	stop, err := hardware.Stop(e.ids.Next(), idx).Encode()
	if err != nil {
		return nil, err
	}
	move := hardware.MoveTo(e.ids.Next(), idx, e.cfg.Range.Map(st.Position), SpringMoveDurationMS)
	moveJSON, err := move.Encode()
	if err != nil {
		return nil, err
	}
	e.pending[move.ID-1] = now
	e.pending[move.ID] = now
	return relay.Encode(relay.Commands{Commands: []string{string(stop), string(moveJSON)}})
}

func (e *Engine) frameControl(st Step) ([]byte, error) {
	ctl := relay.NewControl(
		e.cfg.Range.Map(st.Position),
		e.cfg.SpeedClamp.Apply(st.Speed),
		uint32(e.cfg.SampleInterval/time.Millisecond),
		st.Final,
	)
	return relay.Encode(ctl)
}

// Snapshot is a copy of Engine state for status reporting.
type Snapshot struct {
	Model          Model         `json:"model"`
	SessionState   session.State `json:"session_state"`
	DeviceIndex    *uint32       `json:"device_index,omitempty"`
	Range          StrokeRange   `json:"stroke_range"`
	SpeedClamp     float64       `json:"speed_clamp"`
	SampleInterval string        `json:"sample_interval"`
	Position       float64       `json:"position"`
	NextID         uint32        `json:"next_id"`
	LastAck        uint32        `json:"last_ack"`
	PendingAcks    int           `json:"pending_acks"`
	Emitted        uint64        `json:"emitted"`
	Suppressed     uint64        `json:"suppressed"`
}

func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Model:          e.cfg.Model,
		SessionState:   e.state.Current(),
		Range:          e.cfg.Range,
		SpeedClamp:     float64(e.cfg.SpeedClamp),
		SampleInterval: e.cfg.SampleInterval.String(),
		Position:       e.smoother.Position(),
		NextID:         e.ids.Peek(),
		LastAck:        e.lastAck,
		PendingAcks:    len(e.pending),
		Emitted:        e.emitted,
		Suppressed:     e.suppressed,
	}
	if e.deviceIndex != nil {
		idx := *e.deviceIndex
		s.DeviceIndex = &idx
	}
	return s
}

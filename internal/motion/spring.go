package motion

import (
	"math"
	"time"
)

const residualEpsilon = 1e-4

type SpringConfig struct {
	Stiffness   float64
	Friction    float64
	MaxVelocity float64
}

func DefaultSpringConfig() SpringConfig {
	return SpringConfig{Stiffness: 0.1, Friction: 0.85, MaxVelocity: 0.1}
}

// SpringDamper pulls a virtual position toward the pointer target once per
// frame. Velocity is in position units per frame.
type SpringDamper struct {
	cfg      SpringConfig
	ceiling  float64
	pos      float64
	vel      float64
	target   float64
	dragging bool
}

func NewSpringDamper(cfg SpringConfig) *SpringDamper {
	return &SpringDamper{
		cfg:     cfg,
		ceiling: cfg.MaxVelocity,
		pos:     0.5,
		target:  0.5,
	}
}

func (s *SpringDamper) Model() Model { return ModelSpring }

func (s *SpringDamper) Press(pos float64, _ time.Time) {
	s.dragging = true
	s.target = clamp01(pos)
}

func (s *SpringDamper) Drag(pos float64, _ time.Time) {
	if s.dragging {
		s.target = clamp01(pos)
	}
}

// Release ends the drag; residual motion keeps stepping on frame ticks.
func (s *SpringDamper) Release(time.Time) []Step {
	s.dragging = false
	return nil
}

func (s *SpringDamper) Tick(kind TickKind, _ time.Time) []Step {
	if kind != TickFrame || !(s.dragging || s.residual()) {
		return nil
	}
	force := (s.target - s.pos) * s.cfg.Stiffness
	s.vel = math.Max(-s.ceiling, math.Min(s.ceiling, (s.vel+force)*s.cfg.Friction))
	s.pos = clamp01(s.pos + s.vel)
	speed := 0.0
	if s.cfg.MaxVelocity > 0 {
		speed = math.Abs(s.vel) / s.cfg.MaxVelocity
	}
	return []Step{{Position: s.pos, Speed: speed}}
}

func (s *SpringDamper) Timers() Timers {
	return Timers{Frame: s.dragging || s.residual()}
}

func (s *SpringDamper) Limit(c SpeedClamp) {
	s.ceiling = s.cfg.MaxVelocity * float64(c)
}

func (s *SpringDamper) Position() float64 { return s.pos }

func (s *SpringDamper) Velocity() float64 { return s.vel }

func (s *SpringDamper) residual() bool {
	if s.ceiling <= 0 {
		// a zero speed clamp holds the position
		return false
	}
	return math.Abs(s.vel) > residualEpsilon || math.Abs(s.target-s.pos) > residualEpsilon
}

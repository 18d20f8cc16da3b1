package motion

import (
	"math"
	"time"
)

type SampledConfig struct {
	Window            int
	MaxRawSpeed       float64
	SpeedFloor        float64
	MomentumThreshold float64
	MomentumInterval  time.Duration
	Decay             float64
	StopSpeed         float64
	FinalSpeed        float64
}

func DefaultSampledConfig() SampledConfig {
	return SampledConfig{
		Window:            5,
		MaxRawSpeed:       5.0,
		SpeedFloor:        0.05,
		MomentumThreshold: 0.3,
		MomentumInterval:  20 * time.Millisecond,
		Decay:             0.95,
		StopSpeed:         0.02,
		FinalSpeed:        0.1,
	}
}

type sample struct {
	at  time.Time
	pos float64
}

// SampledMomentum measures pointer speed over a short sample window and
// continues the motion with decaying momentum after release.
type SampledMomentum struct {
	cfg      SampledConfig
	samples  []sample
	pointer  float64
	dragging bool

	lastSpeed float64
	dir       float64

	momentum bool
	mPos     float64
	mSpeed   float64
	mLast    time.Time
}

func NewSampledMomentum(cfg SampledConfig) *SampledMomentum {
	if cfg.Window < 2 {
		cfg.Window = 2
	}
	return &SampledMomentum{cfg: cfg, pointer: 0.5}
}

func (s *SampledMomentum) Model() Model { return ModelSampled }

// Press cancels any momentum still running.
func (s *SampledMomentum) Press(pos float64, now time.Time) {
	s.momentum = false
	s.dragging = true
	s.pointer = clamp01(pos)
	s.lastSpeed = 0
	s.dir = 0
	s.samples = append(s.samples[:0], sample{at: now, pos: s.pointer})
}

func (s *SampledMomentum) Drag(pos float64, _ time.Time) {
	if s.dragging {
		s.pointer = clamp01(pos)
	}
}

func (s *SampledMomentum) Release(now time.Time) []Step {
	if !s.dragging {
		return nil
	}
	s.dragging = false
	if s.lastSpeed > s.cfg.MomentumThreshold && s.dir != 0 {
		s.momentum = true
		s.mPos = s.pointer
		s.mSpeed = clamp01(s.lastSpeed)
		s.mLast = now
		return nil
	}
	return []Step{s.final(s.pointer)}
}

func (s *SampledMomentum) Tick(kind TickKind, now time.Time) []Step {
	switch kind {
	case TickFrame:
		if s.dragging {
			s.record(now)
		}
		return nil
	case TickSend:
		if !s.dragging {
			return nil
		}
		return []Step{s.measure()}
	case TickMomentum:
		if !s.momentum {
			return nil
		}
		return s.advance(now)
	}
	return nil
}

func (s *SampledMomentum) Timers() Timers {
	return Timers{Frame: s.dragging, Send: s.dragging, Momentum: s.momentum}
}

// Limit is a no-op; the engine scales emitted speeds.
func (s *SampledMomentum) Limit(SpeedClamp) {}

func (s *SampledMomentum) Position() float64 {
	if s.momentum {
		return s.mPos
	}
	return s.pointer
}

// LastSpeed is the most recent normalized speed before clamping.
func (s *SampledMomentum) LastSpeed() float64 { return s.lastSpeed }

func (s *SampledMomentum) record(now time.Time) {
	if len(s.samples) == s.cfg.Window {
		copy(s.samples, s.samples[1:])
		s.samples = s.samples[:len(s.samples)-1]
	}
	s.samples = append(s.samples, sample{at: now, pos: s.pointer})
}

func (s *SampledMomentum) measure() Step {
	if len(s.samples) == 0 {
		return Step{Position: s.pointer}
	}
	first, last := s.samples[0], s.samples[len(s.samples)-1]
	raw := 0.0
	if dt := last.at.Sub(first.at).Seconds(); dt > 0 {
		raw = math.Abs(last.pos-first.pos) / dt
	}
	norm := raw / s.cfg.MaxRawSpeed
	if raw > 0 {
		norm = math.Max(norm, s.cfg.SpeedFloor)
		if last.pos > first.pos {
			s.dir = 1
		} else {
			s.dir = -1
		}
	}
	s.lastSpeed = norm
	return Step{Position: last.pos, Speed: clamp01(norm)}
}

func (s *SampledMomentum) advance(now time.Time) []Step {
	dt := now.Sub(s.mLast).Seconds()
	if dt <= 0 {
		dt = s.cfg.MomentumInterval.Seconds()
	}
	s.mLast = now
	s.mPos += s.dir * s.mSpeed * dt
	s.mSpeed *= s.cfg.Decay
	hit := s.mPos <= 0 || s.mPos >= 1
	s.mPos = clamp01(s.mPos)

	steps := []Step{{Position: s.mPos, Speed: s.mSpeed}}
	if s.mSpeed < s.cfg.StopSpeed || hit {
		s.momentum = false
		s.pointer = s.mPos
		steps = append(steps, s.final(s.mPos))
	}
	return steps
}

func (s *SampledMomentum) final(pos float64) Step {
	return Step{Position: pos, Speed: s.cfg.FinalSpeed, Final: true}
}

package motion

import (
	"fmt"
	"strings"
	"time"
)

// Model names a smoother variant.
type Model string

const (
	ModelSpring  Model = "spring"
	ModelSampled Model = "sampled"
)

func ParseModel(raw string) (Model, error) {
	switch m := Model(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ModelSpring, nil
	case ModelSpring, ModelSampled:
		return m, nil
	}
	return "", fmt.Errorf("motion: unknown model %q", raw)
}

// TickKind identifies which of the controller's tickers fired.
type TickKind int

const (
	TickFrame TickKind = iota
	TickSend
	TickMomentum
)

func (k TickKind) String() string {
	switch k {
	case TickSend:
		return "send"
	case TickMomentum:
		return "momentum"
	default:
		return "frame"
	}
}

// Timers reports which tickers a smoother currently needs.
type Timers struct {
	Frame    bool
	Send     bool
	Momentum bool
}

// Step is one smoothed output before range mapping and framing. Position
// and Speed are normalized to [0,1].
type Step struct {
	Position float64
	Speed    float64
	Final    bool
}

// Smoother turns pointer input and ticks into Steps. Implementations are
// owned by one event loop.
type Smoother interface {
	Model() Model
	Press(pos float64, now time.Time)
	Drag(pos float64, now time.Time)
	Release(now time.Time) []Step
	Tick(kind TickKind, now time.Time) []Step
	Timers() Timers
	// Limit sets the speed ceiling applied inside the model, if any.
	Limit(c SpeedClamp)
	Position() float64
}

func NewSmoother(model Model) (Smoother, error) {
	switch model {
	case ModelSpring, "":
		return NewSpringDamper(DefaultSpringConfig()), nil
	case ModelSampled:
		return NewSampledMomentum(DefaultSampledConfig()), nil
	}
	return nil, fmt.Errorf("motion: unknown model %q", model)
}

package motion

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidStrokeRange = errors.New("motion: invalid stroke range")
	ErrInvalidSpeedClamp  = errors.New("motion: speed clamp outside [0,1]")
	ErrInvalidSurface     = errors.New("motion: surface height must be positive")
)

const (
	DefaultStrokeMin = 0.01111
	DefaultStrokeMax = 0.99999
)

// StrokeRange limits commanded positions to [Min, Max] of the device's
// physical travel.
type StrokeRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func DefaultStrokeRange() StrokeRange {
	return StrokeRange{Min: DefaultStrokeMin, Max: DefaultStrokeMax}
}

func (r StrokeRange) Validate() error {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || r.Min < 0 || r.Max > 1 || r.Min > r.Max {
		return fmt.Errorf("%w: min=%v max=%v", ErrInvalidStrokeRange, r.Min, r.Max)
	}
	return nil
}

// Map scales a normalized position into the range.
func (r StrokeRange) Map(p float64) float64 {
	return r.Min + clamp01(p)*(r.Max-r.Min)
}

// SetMin moves the lower handle. It cannot pass the upper handle.
func (r *StrokeRange) SetMin(v float64) {
	r.Min = math.Min(clamp01(v), r.Max)
}

// SetMax moves the upper handle. It cannot pass the lower handle.
func (r *StrokeRange) SetMax(v float64) {
	r.Max = math.Max(clamp01(v), r.Min)
}

// SpeedClamp is a multiplicative ceiling on normalized speed.
type SpeedClamp float64

const DefaultSpeedClamp SpeedClamp = 1

func (c SpeedClamp) Validate() error {
	if math.IsNaN(float64(c)) || c < 0 || c > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSpeedClamp, float64(c))
	}
	return nil
}

func (c SpeedClamp) Apply(speed float64) float64 {
	return clamp01(speed) * float64(c)
}

// Surface is the vertical input area; the top edge maps to 1.
type Surface struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

func (s Surface) Normalize(y float64) (float64, error) {
	if !(s.Height > 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSurface, s.Height)
	}
	return clamp01(1 - (y-s.Top)/s.Height), nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

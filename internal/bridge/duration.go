package bridge

import "math"

const (
	minMoveDurationMS   = 20
	maxMoveDurationMS   = 120
	finalMoveDurationMS = 150

	// assumedMaxRawSpeed is the travel in position units per second at
	// normalized speed 1.0.
	assumedMaxRawSpeed = 5.0
	minSpeedThreshold  = 0.05
)

// LinearDuration converts a control message into a LinearCmd duration in ms.
// last < 0 means no previous command went to this device.
func LinearDuration(position, speed, last float64, final bool) uint32 {
	if final {
		return finalMoveDurationMS
	}
	if last < 0 {
		return minMoveDurationMS
	}
	delta := math.Abs(position - last)
	if delta < 0.001 {
		return minMoveDurationMS
	}
	if speed < minSpeedThreshold {
		speed = minSpeedThreshold
	}
	ms := delta / (speed * assumedMaxRawSpeed) * 1000
	switch {
	case ms < minMoveDurationMS:
		return minMoveDurationMS
	case ms > maxMoveDurationMS:
		return maxMoveDurationMS
	}
	return uint32(ms)
}

package bridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/strokectl/internal/protocol/hardware"
)

var ErrInvalidSelectionPolicy = errors.New("bridge: invalid selection policy")

// SelectionPolicy picks the device to drive from an inventory.
type SelectionPolicy string

const (
	// PolicyLinearOrFirst prefers a linear actuator and otherwise takes the
	// first device of any kind.
	PolicyLinearOrFirst SelectionPolicy = "linear-or-first"
	// PolicyLinearOnly selects nothing unless a linear actuator is present.
	PolicyLinearOnly SelectionPolicy = "linear-only"
)

func ParseSelectionPolicy(raw string) (SelectionPolicy, error) {
	switch p := SelectionPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PolicyLinearOrFirst, nil
	case PolicyLinearOrFirst, PolicyLinearOnly:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSelectionPolicy, raw)
	}
}

// Select applies the policy to devices in inventory order.
func (p SelectionPolicy) Select(devices []hardware.Device) (hardware.Device, bool) {
	for _, d := range devices {
		if d.Can(hardware.CapabilityLinear) {
			return d, true
		}
	}
	if p == PolicyLinearOnly || len(devices) == 0 {
		return hardware.Device{}, false
	}
	return devices[0], true
}

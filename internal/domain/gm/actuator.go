package gm

import "strings"

// ActuatorState is the desired on/off configuration of the mode-controlled
// actuators. The shutdown interlock is intentionally not part of this state:
// it is managed independently of mode transitions.
type ActuatorState struct {
	// Motor drives the vacuum pump.
	Motor bool
	// Valve1 is the inlet valve.
	Valve1 bool
	// Valve2 is the purge valve.
	Valve2 bool
	// Valve5 is the vent valve.
	Valve5 bool
}

// AllOff reports whether every actuator is de-energized.
func (s ActuatorState) AllOff() bool {
	return s == ActuatorState{}
}

// String returns a compact human-readable summary, e.g. "motor,v1,v5" or "off".
func (s ActuatorState) String() string {
	parts := make([]string, 0, 4)
	if s.Motor {
		parts = append(parts, "motor")
	}

	if s.Valve1 {
		parts = append(parts, "v1")
	}

	if s.Valve2 {
		parts = append(parts, "v2")
	}

	if s.Valve5 {
		parts = append(parts, "v5")
	}

	if len(parts) == 0 {
		return "off"
	}

	return strings.Join(parts, ",")
}

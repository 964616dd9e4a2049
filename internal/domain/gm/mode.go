package gm

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is an operating mode of the vapor-recovery processor.
type Mode uint8

// Operating modes. The zero value is ModeRest, so an uninitialized
// controller always holds the safe all-off state.
const (
	// ModeRest keeps the motor and every valve de-energized.
	ModeRest Mode = iota
	// ModeRun processes vapor: motor on, V1 and V5 open.
	ModeRun
	// ModePurge regenerates the carbon bed: motor on, V2 open.
	ModePurge
	// ModeBurp vents the bed after a purge: V5 open.
	ModeBurp
	// ModeBleed slowly relieves pressure: V2 and V5 open.
	ModeBleed
	// ModeLeak is the leak-test configuration: V1, V2 and V5 open.
	ModeLeak

	modeCount
)

// Sentinel mode errors.
var (
	// ErrUnknownMode is returned when a mode name or code is not recognized.
	ErrUnknownMode = errors.New("unknown mode")
)

var modeNames = [modeCount]string{
	ModeRest:  "rest",
	ModeRun:   "run",
	ModePurge: "purge",
	ModeBurp:  "burp",
	ModeBleed: "bleed",
	ModeLeak:  "leak",
}

// String returns the lowercase mode name.
func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("mode(%d)", uint8(m))
	}

	return modeNames[m]
}

// Valid reports whether the mode is one of the six known modes.
func (m Mode) Valid() bool {
	return m < modeCount
}

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range modeNames {
		if s == name {
			return Mode(m), nil
		}
	}

	return ModeRest, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// StoreCode returns the dense code persisted in the shared mode store.
func (m Mode) StoreCode() uint32 {
	return uint32(m)
}

// ModeFromStoreCode converts a persisted store code back to a Mode.
func ModeFromStoreCode(code uint32) (Mode, error) {
	m := Mode(code)
	if !m.Valid() {
		return ModeRest, fmt.Errorf("%w: store code %d", ErrUnknownMode, code)
	}

	return m, nil
}

// Relay-board command codes. The board predates the bleed and leak modes,
// which were assigned the next free slots in its firmware table, so the
// wire encoding is not dense.
const (
	wireRest  = 0
	wireRun   = 1
	wirePurge = 2
	wireBurp  = 3
	wireBleed = 8
	wireLeak  = 9
)

var wireCodes = [modeCount]int{
	ModeRest:  wireRest,
	ModeRun:   wireRun,
	ModePurge: wirePurge,
	ModeBurp:  wireBurp,
	ModeBleed: wireBleed,
	ModeLeak:  wireLeak,
}

// WireCode returns the relay-board command code for the mode.
func (m Mode) WireCode() int {
	if !m.Valid() {
		return wireRest
	}

	return wireCodes[m]
}

// ModeFromWireCode converts a relay-board command code back to a Mode.
func ModeFromWireCode(code int) (Mode, error) {
	for m, c := range wireCodes {
		if c == code {
			return Mode(m), nil
		}
	}

	return ModeRest, fmt.Errorf("%w: wire code %d", ErrUnknownMode, code)
}

// actuatorTable maps every mode to its actuator configuration.
var actuatorTable = [modeCount]ActuatorState{
	ModeRest:  {},
	ModeRun:   {Motor: true, Valve1: true, Valve5: true},
	ModePurge: {Motor: true, Valve2: true},
	ModeBurp:  {Valve5: true},
	ModeBleed: {Valve2: true, Valve5: true},
	ModeLeak:  {Valve1: true, Valve2: true, Valve5: true},
}

// Actuators returns the actuator configuration for the mode.
// Unknown modes fall back to the all-off rest state.
func (m Mode) Actuators() ActuatorState {
	if !m.Valid() {
		return ActuatorState{}
	}

	return actuatorTable[m]
}

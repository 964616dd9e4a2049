package actuator

import (
	"context"
	"errors"
)

// ID identifies a single switched output on the relay board.
type ID string

// Relay-board outputs.
const (
	// Motor drives the vacuum pump.
	Motor ID = "motor"
	// Valve1 is the inlet valve.
	Valve1 ID = "v1"
	// Valve2 is the purge valve.
	Valve2 ID = "v2"
	// Valve5 is the vent valve.
	Valve5 ID = "v5"
	// ShutdownInterlock enables dispensing at the site. It is not part of
	// any mode configuration and is switched independently.
	ShutdownInterlock ID = "shutdown"
)

// ErrWrite is returned when a relay write could not be confirmed.
var ErrWrite = errors.New("actuator write failed")

// Port drives the relay board. Implementations must be safe for use from
// a single goroutine at a time; the relay controller serializes access.
type Port interface {
	// Write switches one output and confirms the change took effect.
	Write(ctx context.Context, id ID, on bool) error
}

// Resetter is implemented by ports that can power-cycle the relay bus.
type Resetter interface {
	// ResetBus power-cycles the relay bus to recover a wedged board.
	ResetBus(ctx context.Context) error
}

// Reader is implemented by ports that can report the last confirmed state
// of an output.
type Reader interface {
	Read(ctx context.Context, id ID) (on bool, err error)
}

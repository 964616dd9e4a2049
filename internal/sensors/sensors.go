package sensors

import (
	"sync"
	"time"
)

// Reading is a sensor value with the time it was observed.
type Reading struct {
	Value float64
	At    time.Time
}

// Source reports the latest reading of one analog sensor.
type Source interface {
	// Latest returns the most recent reading. ok is false before the
	// first sample arrives.
	Latest() (Reading, bool)
}

// Cached holds the latest value of one analog sensor, updated from the
// telemetry link and read by the alarm and fault engines.
type Cached struct {
	mu      sync.RWMutex
	reading Reading
	has     bool
}

var _ Source = (*Cached)(nil)

// Update records a new sample.
func (c *Cached) Update(value float64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reading = Reading{Value: value, At: at}
	c.has = true
}

// Latest returns the most recent reading.
func (c *Cached) Latest() (Reading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.reading, c.has
}

// Flag holds the latest state of one boolean input, such as the overfill
// contact.
type Flag struct {
	mu  sync.RWMutex
	set bool
	at  time.Time
}

// Update records the input state.
func (f *Flag) Update(set bool, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.set = set
	f.at = at
}

// Set reports the last recorded state and when it was observed.
func (f *Flag) Set() (bool, time.Time) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.set, f.at
}

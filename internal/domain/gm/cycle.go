package gm

import "time"

// CycleStep is a single timed stage of a processing sequence.
type CycleStep struct {
	// Mode the processor holds during the step.
	Mode Mode
	// Duration the step runs before advancing.
	Duration time.Duration
}

// Sequence is an ordered list of timed steps executed by the sequencer.
type Sequence []CycleStep

// Duration returns the total planned runtime of the sequence.
func (s Sequence) Duration() time.Duration {
	var total time.Duration
	for _, step := range s {
		total += step.Duration
	}

	return total
}

// Clone returns an independent copy of the sequence.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}

	out := make(Sequence, len(s))
	copy(out, s)

	return out
}

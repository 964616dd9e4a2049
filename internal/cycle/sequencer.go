package cycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/logger"
	"github.com/vst-controls/green-machine/internal/metrics"
)

// defaultPollInterval bounds how long a cancel request can go unnoticed
// mid-step.
const defaultPollInterval = 50 * time.Millisecond

// Sequencer errors.
var (
	// ErrAlreadyRunning is returned when a sequence start races a live worker.
	ErrAlreadyRunning = errors.New("a cycle is already running")
	// ErrEmptySequence is returned for a sequence with no steps.
	ErrEmptySequence = errors.New("sequence has no steps")
)

// ModeApplier drives the actuators into a mode.
type ModeApplier interface {
	ApplyMode(ctx context.Context, mode gm.Mode) error
}

// Progress is a snapshot of a running sequence.
type Progress struct {
	RunID       string
	Name        string
	Sequence    gm.Sequence
	Step        int
	StepStarted time.Time
	Elapsed     time.Duration
	Manual      bool
}

// Sequencer runs timed mode sequences on a single worker goroutine.
// At most one sequence runs at a time; starts are refused while the
// previous worker is still alive, even mid-cancellation.
type Sequencer struct {
	relay ModeApplier

	pollInterval time.Duration
	now          func() time.Time

	mu       sync.Mutex
	cancel   chan struct{}
	done     chan struct{}
	progress Progress
}

// NewSequencer returns an idle sequencer.
func NewSequencer(relay ModeApplier) *Sequencer {
	return &Sequencer{
		relay:        relay,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
}

// Start launches the named sequence on the worker goroutine. It returns
// ErrAlreadyRunning while a previous worker is alive, including one that
// is still winding down after a cancel.
func (s *Sequencer) Start(ctx context.Context, name string, seq gm.Sequence, manual bool) error {
	if len(seq) == 0 {
		return ErrEmptySequence
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workerAlive() {
		return ErrAlreadyRunning
	}

	s.cancel = make(chan struct{})
	s.done = make(chan struct{})
	s.progress = Progress{
		RunID:    uuid.NewString(),
		Name:     name,
		Sequence: seq.Clone(),
		Manual:   manual,
		// Stamped here, not by the worker: a Progress or Pause racing the
		// worker's first mode change must not see a zero start time.
		StepStarted: s.now(),
	}

	logger.InfoKV(ctx, "cycle started",
		"run_id", s.progress.RunID, "sequence", name,
		"steps", len(seq), "planned", seq.Duration(), "manual", manual)

	go s.run(ctx, s.cancel, s.done)

	return nil
}

// workerAlive reports whether a worker goroutine has not finished yet.
// Callers hold s.mu.
func (s *Sequencer) workerAlive() bool {
	if s.done == nil {
		return false
	}

	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Running reports whether a sequence is currently executing.
func (s *Sequencer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.workerAlive()
}

// Progress returns a snapshot of the running sequence. ok is false when idle.
func (s *Sequencer) Progress() (Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.workerAlive() {
		return Progress{}, false
	}

	p := s.progress
	p.Sequence = p.Sequence.Clone()
	p.Elapsed = s.now().Sub(p.StepStarted)

	return p, true
}

// CancelAndWait asks the worker to stop and blocks until it has parked the
// machine in rest, or until ctx expires. Cancelling an idle sequencer is
// a no-op.
func (s *Sequencer) CancelAndWait(ctx context.Context) error {
	s.mu.Lock()

	if !s.workerAlive() {
		s.mu.Unlock()
		return nil
	}

	cancel, done := s.cancel, s.done

	select {
	case <-cancel:
	default:
		close(cancel)
	}
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes the sequence step by step, parking the machine in rest at
// the end regardless of how the run finishes.
func (s *Sequencer) run(ctx context.Context, cancel, done chan struct{}) {
	defer close(done)

	outcome := "completed"

	for i := range s.snapshotSequence() {
		step := s.stepAt(i)

		if err := s.relay.ApplyMode(ctx, step.Mode); err != nil {
			logger.ErrorKV(ctx, "cycle aborted on mode change",
				"step", i, "mode", step.Mode, "error", err)

			outcome = "cancelled"

			break
		}

		s.markStep(i)

		if !s.sleepWithCheck(ctx, cancel, step.Duration) {
			logger.InfoKV(ctx, "cycle cancelled", "step", i, "mode", step.Mode)

			outcome = "cancelled"

			break
		}
	}

	// Park in rest even after a cancel or an abort.
	if err := s.relay.ApplyMode(ctx, gm.ModeRest); err != nil {
		logger.ErrorKV(ctx, "failed to park in rest after cycle", "error", err)
	}

	metrics.CycleFinished(outcome)
	logger.InfoKV(ctx, "cycle finished", "run_id", s.runID(), "outcome", outcome)
}

func (s *Sequencer) snapshotSequence() gm.Sequence {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.progress.Sequence
}

func (s *Sequencer) stepAt(i int) gm.CycleStep {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.progress.Sequence[i]
}

func (s *Sequencer) markStep(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress.Step = i
	s.progress.StepStarted = s.now()
}

func (s *Sequencer) runID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.progress.RunID
}

// sleepWithCheck waits out a step duration while polling for cancellation.
// It returns false when the step was interrupted.
func (s *Sequencer) sleepWithCheck(ctx context.Context, cancel chan struct{}, d time.Duration) bool {
	deadline := s.now().Add(d)

	for {
		remaining := deadline.Sub(s.now())
		if remaining <= 0 {
			return true
		}

		wait := s.pollInterval
		if remaining < wait {
			wait = remaining
		}

		timer := time.NewTimer(wait)

		select {
		case <-cancel:
			timer.Stop()
			return false
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

package cycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vst-controls/green-machine/internal/domain/gm"
)

// recordingApplier collects every applied mode.
type recordingApplier struct {
	mu    sync.Mutex
	modes []gm.Mode
}

func (r *recordingApplier) ApplyMode(_ context.Context, mode gm.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.modes = append(r.modes, mode)

	return nil
}

func (r *recordingApplier) applied() []gm.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]gm.Mode, len(r.modes))
	copy(out, r.modes)

	return out
}

func newTestSequencer(relay ModeApplier) *Sequencer {
	s := NewSequencer(relay)
	s.pollInterval = time.Millisecond

	return s
}

func waitIdle(t *testing.T, s *Sequencer) {
	t.Helper()

	require.Eventually(t, func() bool { return !s.Running() }, 5*time.Second, time.Millisecond)
}

// TestSequencer_RunsAllSteps verifies each step's mode is applied in order
// and the machine parks in rest afterwards.
func TestSequencer_RunsAllSteps(t *testing.T) {
	t.Parallel()

	relay := &recordingApplier{}
	s := newTestSequencer(relay)

	seq := gm.Sequence{
		{Mode: gm.ModeRun, Duration: 5 * time.Millisecond},
		{Mode: gm.ModePurge, Duration: 5 * time.Millisecond},
		{Mode: gm.ModeBurp, Duration: 5 * time.Millisecond},
	}

	require.NoError(t, s.Start(context.Background(), NameRunCycle, seq, false))
	waitIdle(t, s)

	require.Equal(t, []gm.Mode{gm.ModeRun, gm.ModePurge, gm.ModeBurp, gm.ModeRest}, relay.applied())
}

// gatedApplier blocks every mode write until the gate is opened.
type gatedApplier struct {
	gate chan struct{}
}

func (g *gatedApplier) ApplyMode(_ context.Context, _ gm.Mode) error {
	<-g.gate
	return nil
}

// TestSequencer_ProgressBeforeFirstModeWrite verifies a snapshot taken
// while the worker is still inside its first mode write reports a sane
// start time and elapsed, not a zero-time artifact.
func TestSequencer_ProgressBeforeFirstModeWrite(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	s := newTestSequencer(&gatedApplier{gate: gate})

	seq := gm.Sequence{{Mode: gm.ModeRun, Duration: time.Hour}}
	require.NoError(t, s.Start(context.Background(), NameTestRun, seq, true))

	p, ok := s.Progress()
	require.True(t, ok)
	require.False(t, p.StepStarted.IsZero())
	require.GreaterOrEqual(t, p.Elapsed, time.Duration(0))
	require.Less(t, p.Elapsed, time.Hour)

	close(gate)
	require.NoError(t, s.CancelAndWait(context.Background()))
	waitIdle(t, s)
}

// TestSequencer_RejectsConcurrentStart verifies the single-worker guard.
func TestSequencer_RejectsConcurrentStart(t *testing.T) {
	t.Parallel()

	s := newTestSequencer(&recordingApplier{})

	seq := gm.Sequence{{Mode: gm.ModeRun, Duration: time.Second}}
	require.NoError(t, s.Start(context.Background(), NameTestRun, seq, true))

	err := s.Start(context.Background(), NameTestRun, seq, true)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, s.CancelAndWait(context.Background()))
	waitIdle(t, s)

	// The worker is gone, so a new start is accepted.
	require.NoError(t, s.Start(context.Background(), NameTestRun,
		gm.Sequence{{Mode: gm.ModeRun, Duration: time.Millisecond}}, true))
	waitIdle(t, s)
}

// TestSequencer_RejectsEmptySequence verifies the empty-sequence guard.
func TestSequencer_RejectsEmptySequence(t *testing.T) {
	t.Parallel()

	s := newTestSequencer(&recordingApplier{})
	require.ErrorIs(t, s.Start(context.Background(), NameRunCycle, nil, false), ErrEmptySequence)
}

// TestSequencer_CancelParksInRest verifies a mid-step cancel is noticed
// quickly and still drives the machine to rest.
func TestSequencer_CancelParksInRest(t *testing.T) {
	t.Parallel()

	relay := &recordingApplier{}
	s := newTestSequencer(relay)

	seq := gm.Sequence{
		{Mode: gm.ModeRun, Duration: time.Hour},
		{Mode: gm.ModePurge, Duration: time.Hour},
	}

	require.NoError(t, s.Start(context.Background(), NameRunCycle, seq, false))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.CancelAndWait(ctx))

	applied := relay.applied()
	require.Equal(t, []gm.Mode{gm.ModeRun, gm.ModeRest}, applied)
	require.False(t, s.Running())
}

// TestSequencer_ProgressSnapshot verifies the progress report while running.
func TestSequencer_ProgressSnapshot(t *testing.T) {
	t.Parallel()

	s := newTestSequencer(&recordingApplier{})

	seq := gm.Sequence{{Mode: gm.ModeLeak, Duration: time.Hour}}
	require.NoError(t, s.Start(context.Background(), NameLeakTest, seq, true))

	require.Eventually(t, func() bool {
		p, ok := s.Progress()
		return ok && p.Step == 0 && !p.StepStarted.IsZero()
	}, 5*time.Second, time.Millisecond)

	p, ok := s.Progress()
	require.True(t, ok)
	require.Equal(t, NameLeakTest, p.Name)
	require.True(t, p.Manual)
	require.NotEmpty(t, p.RunID)
	require.Len(t, p.Sequence, 1)

	require.NoError(t, s.CancelAndWait(context.Background()))

	_, ok = s.Progress()
	require.False(t, ok)
}

// TestSequencer_DoubleCancel verifies cancelling twice is harmless.
func TestSequencer_DoubleCancel(t *testing.T) {
	t.Parallel()

	s := newTestSequencer(&recordingApplier{})
	require.NoError(t, s.CancelAndWait(context.Background()))

	seq := gm.Sequence{{Mode: gm.ModeRun, Duration: time.Hour}}
	require.NoError(t, s.Start(context.Background(), NameRunCycle, seq, false))

	require.NoError(t, s.CancelAndWait(context.Background()))
	require.NoError(t, s.CancelAndWait(context.Background()))
}

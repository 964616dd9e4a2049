package fault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/sensors"
)

type fakePauser struct {
	pauses, resumes, aborts int
	pauseErr                error
}

func (f *fakePauser) Pause(context.Context) error {
	f.pauses++
	return f.pauseErr
}

func (f *fakePauser) Resume(context.Context) error {
	f.resumes++
	return nil
}

func (f *fakePauser) Abort(context.Context) error {
	f.aborts++
	return nil
}

type fakeInterlock struct {
	calls []string
}

func (f *fakeInterlock) SetShutdownInterlock(_ context.Context, on bool, by gm.AlarmName) error {
	state := "off"
	if on {
		state = "on"
	}

	f.calls = append(f.calls, string(by)+":"+state)

	return nil
}

type fakeAlarms struct {
	raised int
}

func (f *fakeAlarms) RaiseVacPump(context.Context) error {
	f.raised++
	return nil
}

type fakeProfile struct {
	profile gm.Profile
}

func (f *fakeProfile) Active(context.Context) gm.Profile { return f.profile }

type harness struct {
	detector  *Detector
	current   *sensors.Cached
	pauser    *fakePauser
	interlock *fakeInterlock
	alarms    *fakeAlarms
	profile   *fakeProfile
	clock     time.Time
}

func newHarness(profile gm.Profile) *harness {
	h := &harness{
		current:   &sensors.Cached{},
		pauser:    &fakePauser{},
		interlock: &fakeInterlock{},
		alarms:    &fakeAlarms{},
		profile:   &fakeProfile{profile: profile},
		clock:     time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}

	h.detector = NewDetector(h.current, h.pauser, h.interlock, h.alarms, h.profile, 20.0)
	h.detector.now = func() time.Time { return h.clock }
	h.detector.sleep = func(context.Context, time.Duration) error { return nil }

	return h
}

// tick advances the fake clock and evaluates one sample.
func (h *harness) tick(t *testing.T, amps float64, advance time.Duration) {
	t.Helper()

	h.clock = h.clock.Add(advance)
	h.current.Update(amps, h.clock)
	h.detector.Check(context.Background())
}

// TestDetector_ConfirmsBeforeStriking verifies a short spike does not count.
func TestDetector_ConfirmsBeforeStriking(t *testing.T) {
	t.Parallel()

	h := newHarness(gm.ProfileCS9)

	h.tick(t, 25, 0)
	require.Zero(t, h.detector.Strikes())

	// Current drops before the confirmation window elapses.
	h.tick(t, 5, time.Second)
	h.tick(t, 25, time.Second)
	require.Zero(t, h.detector.Strikes())
	require.Zero(t, h.pauser.pauses)
}

// TestDetector_FirstStrikesPauseAndResume verifies the recovery
// choreography on non-final strikes.
func TestDetector_FirstStrikesPauseAndResume(t *testing.T) {
	t.Parallel()

	h := newHarness(gm.ProfileCS9)

	h.tick(t, 25, 0)
	h.tick(t, 25, 2*time.Second)
	require.Equal(t, 1, h.detector.Strikes())
	require.Equal(t, 1, h.pauser.pauses)
	require.Equal(t, 1, h.pauser.resumes)
	require.Equal(t, []string{"gm_fault:off", "gm_fault:on"}, h.interlock.calls)

	// Second confirmed strike repeats the choreography.
	h.tick(t, 25, time.Second)
	h.tick(t, 25, 2*time.Second)
	require.Equal(t, 2, h.detector.Strikes())
	require.Equal(t, 2, h.pauser.pauses)
	require.Equal(t, 2, h.pauser.resumes)
	require.Zero(t, h.pauser.aborts)
	require.Zero(t, h.alarms.raised)
}

// TestDetector_ThirdStrikeStopsMonitoring verifies the final strike stops
// the cycle, raises the pump alarm and ends monitoring.
func TestDetector_ThirdStrikeStopsMonitoring(t *testing.T) {
	t.Parallel()

	h := newHarness(gm.ProfileCS9)

	for range 3 {
		h.tick(t, 25, time.Second)
		h.tick(t, 25, 2*time.Second)
	}

	require.Equal(t, 3, h.detector.Strikes())
	require.Equal(t, 1, h.pauser.aborts)
	require.Equal(t, 1, h.alarms.raised)
	require.Equal(t, "vac_pump:off", h.interlock.calls[len(h.interlock.calls)-1])

	// Monitoring is over: further overdraw changes nothing.
	h.tick(t, 30, time.Second)
	h.tick(t, 30, 2*time.Second)
	require.Equal(t, 3, h.detector.Strikes())

	// A technician clearing the strikes re-arms the detector.
	h.detector.ClearStrikes(context.Background())
	h.tick(t, 25, time.Second)
	h.tick(t, 25, 2*time.Second)
	require.Equal(t, 1, h.detector.Strikes())
}

// TestDetector_SustainedLowResetsStrikes verifies the low-current reset
// needs its own confirmation window.
func TestDetector_SustainedLowResetsStrikes(t *testing.T) {
	t.Parallel()

	h := newHarness(gm.ProfileCS9)

	h.tick(t, 25, 0)
	h.tick(t, 25, 2*time.Second)
	require.Equal(t, 1, h.detector.Strikes())

	// A single low sample is not enough.
	h.tick(t, 3, time.Second)
	require.Equal(t, 1, h.detector.Strikes())

	// Two seconds of low current clears the counter.
	h.tick(t, 3, 2*time.Second)
	require.Zero(t, h.detector.Strikes())
}

// TestDetector_OnlyOnCS9 verifies other profiles never evaluate samples.
func TestDetector_OnlyOnCS9(t *testing.T) {
	t.Parallel()

	h := newHarness(gm.ProfileCS8)

	h.tick(t, 40, 0)
	h.tick(t, 40, 2*time.Second)
	h.tick(t, 40, 2*time.Second)

	require.Zero(t, h.detector.Strikes())
	require.Zero(t, h.pauser.pauses)
}

// TestDetector_FailedPauseSkipsChoreography verifies the strike is still
// recorded when the cycle cannot be paused, but nothing else happens.
func TestDetector_FailedPauseSkipsChoreography(t *testing.T) {
	t.Parallel()

	h := newHarness(gm.ProfileCS9)
	h.pauser.pauseErr = errors.New("no cycle running")

	h.tick(t, 25, 0)
	h.tick(t, 25, 2*time.Second)

	require.Equal(t, 1, h.detector.Strikes())
	require.Equal(t, 1, h.pauser.pauses)
	require.Zero(t, h.pauser.resumes)
	require.Empty(t, h.interlock.calls)
}

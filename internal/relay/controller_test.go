package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vst-controls/green-machine/internal/actuator"
	"github.com/vst-controls/green-machine/internal/domain/gm"
)

// fakeModes is an in-memory ModeRecorder.
type fakeModes struct {
	mode gm.Mode
	sets int
}

func (f *fakeModes) Get(context.Context) gm.Mode { return f.mode }

func (f *fakeModes) Set(_ context.Context, mode gm.Mode) error {
	f.mode = mode
	f.sets++

	return nil
}

// fakeProfile is a fixed ProfileSource.
type fakeProfile struct {
	profile gm.Profile
}

func (f *fakeProfile) Active(context.Context) gm.Profile { return f.profile }

func newTestController(profile gm.Profile) (*Controller, *actuator.MemoryPort, *fakeModes) {
	port := actuator.NewMemoryPort()
	modes := &fakeModes{}
	c := NewController(port, modes, &fakeProfile{profile: profile})
	c.retryBackoff = 0

	return c, port, modes
}

// TestApplyMode_DrivesActuators verifies the run configuration reaches the port.
func TestApplyMode_DrivesActuators(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, port, modes := newTestController(gm.ProfileCS8)

	require.NoError(t, c.ApplyMode(ctx, gm.ModeRun))

	require.True(t, port.State(actuator.Motor))
	require.True(t, port.State(actuator.Valve1))
	require.False(t, port.State(actuator.Valve2))
	require.True(t, port.State(actuator.Valve5))
	require.Equal(t, gm.ModeRun, modes.mode)
}

// TestApplyMode_Idempotent verifies reapplying the recorded mode touches
// neither the bus nor the store.
func TestApplyMode_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, port, modes := newTestController(gm.ProfileCS8)

	require.NoError(t, c.ApplyMode(ctx, gm.ModePurge))
	require.NoError(t, c.ApplyMode(ctx, gm.ModePurge))

	require.Equal(t, 1, port.Writes(actuator.Motor))
	require.Equal(t, 1, modes.sets)
}

// TestApplyMode_RetriesThenRecovers verifies a flaky output succeeds within
// the retry budget without degrading the controller.
func TestApplyMode_RetriesThenRecovers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, port, _ := newTestController(gm.ProfileCS8)

	port.FailWrites(actuator.Motor, 2)
	require.NoError(t, c.ApplyMode(ctx, gm.ModeRun))

	require.True(t, port.State(actuator.Motor))
	require.Equal(t, 3, port.Writes(actuator.Motor))
	require.False(t, c.Degraded())
	require.Zero(t, port.Resets())
}

// TestApplyMode_AbandonsOutputAfterBusReset verifies retry exhaustion resets
// the bus, degrades the controller, and still records the mode.
func TestApplyMode_AbandonsOutputAfterBusReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, port, modes := newTestController(gm.ProfileCS8)

	port.FailWrites(actuator.Motor, writeAttempts)
	require.NoError(t, c.ApplyMode(ctx, gm.ModeRun))

	require.True(t, c.Degraded())
	require.Equal(t, 1, port.Resets())
	require.Equal(t, gm.ModeRun, modes.mode)
	// The valves still reached their run state.
	require.True(t, port.State(actuator.Valve1))
	require.True(t, port.State(actuator.Valve5))
}

// TestAllowsInterlockControl pins the permission matrix.
func TestAllowsInterlockControl(t *testing.T) {
	t.Parallel()

	for _, profile := range []gm.Profile{gm.ProfileCS2, gm.ProfileCS8, gm.ProfileCS9, gm.ProfileCS12} {
		require.True(t, AllowsInterlockControl(gm.AlarmSeventyTwoHour, profile))
	}

	for _, name := range []gm.AlarmName{gm.AlarmPressureSensor, gm.AlarmVacPump, gm.AlarmGMFault} {
		require.True(t, AllowsInterlockControl(name, gm.ProfileCS9))
		require.False(t, AllowsInterlockControl(name, gm.ProfileCS8))
		require.False(t, AllowsInterlockControl(name, gm.ProfileCS2))
		require.False(t, AllowsInterlockControl(name, gm.ProfileCS12))
	}

	require.False(t, AllowsInterlockControl(gm.AlarmOverfill, gm.ProfileCS9))
}

// TestSetShutdownInterlock_DeniedWithoutPermission verifies denied requests
// do not reach the bus.
func TestSetShutdownInterlock_DeniedWithoutPermission(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, port, _ := newTestController(gm.ProfileCS8)

	err := c.SetShutdownInterlock(ctx, false, gm.AlarmVacPump)
	require.ErrorIs(t, err, ErrNotPermitted)
	require.Zero(t, port.Writes(actuator.ShutdownInterlock))
}

// TestSetShutdownInterlock_WriteOnChangeOnly verifies the held state is
// not rewritten.
func TestSetShutdownInterlock_WriteOnChangeOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, port, _ := newTestController(gm.ProfileCS9)

	require.NoError(t, c.SetShutdownInterlock(ctx, false, gm.AlarmVacPump))
	require.NoError(t, c.SetShutdownInterlock(ctx, false, gm.AlarmGMFault))
	require.Equal(t, 1, port.Writes(actuator.ShutdownInterlock))
	require.False(t, c.InterlockEnabled())

	require.NoError(t, c.SetShutdownInterlock(ctx, true, gm.AlarmVacPump))
	require.Equal(t, 2, port.Writes(actuator.ShutdownInterlock))
	require.True(t, c.InterlockEnabled())
}

// TestReconcileInterlock verifies the interlock is recomputed from the
// active alarms under the new profile.
func TestReconcileInterlock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// On CS9 an active pump alarm keeps dispensing disabled.
	c, port, _ := newTestController(gm.ProfileCS9)
	require.NoError(t, c.ReconcileInterlock(ctx, []gm.AlarmName{gm.AlarmVacPump}, false))
	require.False(t, port.State(actuator.ShutdownInterlock))
	require.False(t, c.InterlockEnabled())

	// The same alarm on CS8 has no interlock permission.
	c, port, _ = newTestController(gm.ProfileCS8)
	require.NoError(t, c.ReconcileInterlock(ctx, []gm.AlarmName{gm.AlarmVacPump}, false))
	require.True(t, port.State(actuator.ShutdownInterlock))

	// A latched automatic shutdown wins regardless of profile.
	c, port, _ = newTestController(gm.ProfileCS8)
	require.NoError(t, c.ReconcileInterlock(ctx, nil, true))
	require.False(t, port.State(actuator.ShutdownInterlock))
}

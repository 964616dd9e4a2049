package alarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vst-controls/green-machine/internal/repository/settings"
	"github.com/vst-controls/green-machine/internal/sensors"
)

func checkAt(t *testing.T, c Condition, want bool) {
	t.Helper()

	got, err := c.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// TestPressureConditions pins the pressure thresholds.
func TestPressureConditions(t *testing.T) {
	t.Parallel()

	pressure := &sensors.Cached{}

	sensorFail := PressureSensorFailure(pressure)
	over := OverPressure(pressure)
	under := UnderPressure(pressure)
	zero := ZeroPressure(pressure)

	// No sample yet: nothing trips.
	checkAt(t, sensorFail, false)
	checkAt(t, over, false)
	checkAt(t, under, false)
	checkAt(t, zero, false)

	pressure.Update(-45.0, time.Now())
	checkAt(t, sensorFail, true)
	checkAt(t, under, true)

	pressure.Update(2.0, time.Now())
	checkAt(t, over, true)
	checkAt(t, sensorFail, false)

	pressure.Update(-6.0, time.Now())
	checkAt(t, under, true)
	checkAt(t, over, false)

	pressure.Update(0.1, time.Now())
	checkAt(t, zero, true)

	pressure.Update(-0.3, time.Now())
	checkAt(t, zero, false)
}

// TestVariablePressure verifies the chasing reference point: moving
// pressure keeps re-anchoring, flat pressure stays true.
func TestVariablePressure(t *testing.T) {
	t.Parallel()

	repo := settings.NewMemoryStore()
	pressure := &sensors.Cached{}
	cond := VariablePressure(repo, pressure)

	// First sample anchors the point.
	pressure.Update(-1.0, time.Now())
	checkAt(t, cond, false)

	// Within the band of the anchor: not varying.
	pressure.Update(-1.1, time.Now())
	checkAt(t, cond, true)
	checkAt(t, cond, true)

	// A real excursion re-anchors and clears the condition.
	pressure.Update(-2.0, time.Now())
	checkAt(t, cond, false)

	pressure.Update(-2.05, time.Now())
	checkAt(t, cond, true)
}

// TestVacuumPump verifies the accumulated-failure threshold.
func TestVacuumPump(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := settings.NewMemoryStore()
	cond := VacuumPump(repo)

	checkAt(t, cond, false)

	require.NoError(t, settings.SetInt(ctx, repo, "vac_pump_failure_count", 9))
	checkAt(t, cond, false)

	require.NoError(t, settings.SetInt(ctx, repo, "vac_pump_failure_count", 10))
	checkAt(t, cond, true)
}

// TestOverfill verifies the two-hour latch after the contact drops.
func TestOverfill(t *testing.T) {
	t.Parallel()

	repo := settings.NewMemoryStore()
	contact := &sensors.Flag{}

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cond := Overfill(repo, contact, func() time.Time { return clock })

	checkAt(t, cond, false)

	contact.Update(true, clock)
	checkAt(t, cond, true)

	// Contact drops: the latch holds for two hours.
	contact.Update(false, clock)
	clock = clock.Add(time.Hour)
	checkAt(t, cond, true)

	clock = clock.Add(90 * time.Minute)
	checkAt(t, cond, false)
}

// TestDigitalStorage verifies the canary round trip and the fail-safe on
// a broken store.
func TestDigitalStorage(t *testing.T) {
	t.Parallel()

	repo := settings.NewMemoryStore()
	cond := DigitalStorage(repo, time.Now)
	checkAt(t, cond, false)

	require.NoError(t, repo.Close())
	checkAt(t, cond, true)
}

// TestProcessorFault verifies the strike threshold.
func TestProcessorFault(t *testing.T) {
	t.Parallel()

	strikes := &fakeStrikes{}
	cond := ProcessorFault(strikes)

	checkAt(t, cond, false)

	strikes.n = 3
	checkAt(t, cond, true)
}

type fakeStrikes struct {
	n       int
	cleared int
}

func (f *fakeStrikes) Strikes() int { return f.n }

func (f *fakeStrikes) ClearStrikes(context.Context) {
	f.n = 0
	f.cleared++
}

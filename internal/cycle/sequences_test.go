package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vst-controls/green-machine/internal/domain/gm"
)

// TestRunCycle_ProductionTiming pins the standard cycle shape: run, rest,
// six purge/burp pairs, final rest, 467 seconds in total.
func TestRunCycle_ProductionTiming(t *testing.T) {
	t.Parallel()

	seq := RunCycle(StandardTimes(false))

	require.Len(t, seq, 15)
	require.Equal(t, gm.CycleStep{Mode: gm.ModeRun, Duration: 2 * time.Minute}, seq[0])
	require.Equal(t, gm.CycleStep{Mode: gm.ModeRest, Duration: 2 * time.Second}, seq[1])
	require.Equal(t, gm.CycleStep{Mode: gm.ModeRest, Duration: 15 * time.Second}, seq[14])

	for i := 2; i < 14; i += 2 {
		require.Equal(t, gm.ModePurge, seq[i].Mode)
		require.Equal(t, gm.ModeBurp, seq[i+1].Mode)
	}

	require.Equal(t, 467*time.Second, seq.Duration())
}

// TestSequenceCatalog verifies the shapes of the service sequences.
func TestSequenceCatalog(t *testing.T) {
	t.Parallel()

	times := StandardTimes(false)

	fn := FunctionalityTest(times)
	require.Len(t, fn, 20)
	require.Equal(t, gm.ModeRun, fn[0].Mode)
	require.Equal(t, gm.ModePurge, fn[1].Mode)

	leak := LeakTest(times)
	require.Equal(t, gm.Sequence{{Mode: gm.ModeLeak, Duration: 30 * time.Minute}}, leak)

	clean := CanisterClean(times)
	require.Equal(t, gm.Sequence{{Mode: gm.ModeRun, Duration: 2 * time.Hour}}, clean)

	purge := EfficiencyPurge(times)
	require.Len(t, purge, 12)
	require.Equal(t, gm.ModePurge, purge[0].Mode)
	require.Equal(t, gm.ModeBurp, purge[11].Mode)
}

// TestStandardTimes_DebugIsShorter verifies debug timing shortens the
// long stages.
func TestStandardTimes_DebugIsShorter(t *testing.T) {
	t.Parallel()

	debug := StandardTimes(true)
	prod := StandardTimes(false)

	require.Less(t, debug.Run, prod.Run)
	require.Less(t, debug.LeakHold, prod.LeakHold)
	require.Less(t, debug.CanisterRun, prod.CanisterRun)
}

// TestByName resolves operator sequence names.
func TestByName(t *testing.T) {
	t.Parallel()

	times := StandardTimes(false)

	seq, ok := ByName("", times)
	require.True(t, ok)
	require.Equal(t, 467*time.Second, seq.Duration())

	_, ok = ByName(NameLeakTest, times)
	require.True(t, ok)

	_, ok = ByName("warp-drive", times)
	require.False(t, ok)
}

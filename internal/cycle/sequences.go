package cycle

import (
	"time"

	"github.com/vst-controls/green-machine/internal/domain/gm"
)

// Sequence names used by operator commands and progress reports.
const (
	NameRunCycle          = "run-cycle"
	NameFunctionalityTest = "functionality-test"
	NameLeakTest          = "leak-test"
	NameCanisterClean     = "canister-clean"
	NameTestPurge         = "test-purge"
	NameTestRun           = "test-run"
	NameEfficiencyFill    = "efficiency-fill"
	NameEfficiencyPurge   = "efficiency-purge"
)

// Times holds the step durations used to build sequences. Debug mode
// shortens the long stages so a full cycle fits a bench session.
type Times struct {
	Run       time.Duration
	RestFinal time.Duration
	Purge     time.Duration
	TestPurge time.Duration
	Burp      time.Duration

	FuncStage      time.Duration
	LeakHold       time.Duration
	CanisterRun    time.Duration
	EfficiencyFill time.Duration
}

// StandardTimes returns the production or debug timing set.
func StandardTimes(debug bool) Times {
	if debug {
		return Times{
			Run:            30 * time.Second,
			RestFinal:      5 * time.Second,
			Purge:          50 * time.Second,
			TestPurge:      30 * time.Second,
			Burp:           2 * time.Second,
			FuncStage:      6 * time.Second,
			LeakHold:       3 * time.Minute,
			CanisterRun:    time.Minute,
			EfficiencyFill: 30 * time.Second,
		}
	}

	return Times{
		Run:            2 * time.Minute,
		RestFinal:      15 * time.Second,
		Purge:          50 * time.Second,
		TestPurge:      30 * time.Second,
		Burp:           5 * time.Second,
		FuncStage:      time.Minute,
		LeakHold:       30 * time.Minute,
		CanisterRun:    2 * time.Hour,
		EfficiencyFill: 2 * time.Minute,
	}
}

// purgeBurpPairs is the number of purge/burp repetitions in a run cycle.
const purgeBurpPairs = 6

// interStepRest separates the run stage from the purge/burp pairs.
const interStepRest = 2 * time.Second

// RunCycle builds the standard processing cycle: run, then six purge/burp
// pairs, then a final rest before the next cycle may start.
func RunCycle(t Times) gm.Sequence {
	seq := gm.Sequence{
		{Mode: gm.ModeRun, Duration: t.Run},
		{Mode: gm.ModeRest, Duration: interStepRest},
	}

	for range purgeBurpPairs {
		seq = append(seq,
			gm.CycleStep{Mode: gm.ModePurge, Duration: t.Purge},
			gm.CycleStep{Mode: gm.ModeBurp, Duration: t.Burp},
		)
	}

	return append(seq, gm.CycleStep{Mode: gm.ModeRest, Duration: t.RestFinal})
}

// FunctionalityTest alternates run and purge ten times to exercise every
// actuator path.
func FunctionalityTest(t Times) gm.Sequence {
	seq := make(gm.Sequence, 0, 20)
	for range 10 {
		seq = append(seq,
			gm.CycleStep{Mode: gm.ModeRun, Duration: t.FuncStage},
			gm.CycleStep{Mode: gm.ModePurge, Duration: t.FuncStage},
		)
	}

	return seq
}

// LeakTest holds the leak configuration long enough for a pressure-decay
// measurement.
func LeakTest(t Times) gm.Sequence {
	return gm.Sequence{{Mode: gm.ModeLeak, Duration: t.LeakHold}}
}

// CanisterClean runs the processor continuously to regenerate the carbon
// canister.
func CanisterClean(t Times) gm.Sequence {
	return gm.Sequence{{Mode: gm.ModeRun, Duration: t.CanisterRun}}
}

// TestPurge is a single shortened purge followed by a rest.
func TestPurge(t Times, rest time.Duration) gm.Sequence {
	return gm.Sequence{
		{Mode: gm.ModePurge, Duration: t.TestPurge},
		{Mode: gm.ModeRest, Duration: rest},
	}
}

// TestRun is a single run of the given length followed by a rest.
func TestRun(run, rest time.Duration) gm.Sequence {
	return gm.Sequence{
		{Mode: gm.ModeRun, Duration: run},
		{Mode: gm.ModeRest, Duration: rest},
	}
}

// EfficiencyFillRun is the fill stage of the efficiency test.
func EfficiencyFillRun(t Times) gm.Sequence {
	return gm.Sequence{{Mode: gm.ModeRun, Duration: t.EfficiencyFill}}
}

// EfficiencyPurge is the purge stage of the efficiency test: six standard
// purge/burp pairs without the leading run.
func EfficiencyPurge(t Times) gm.Sequence {
	seq := make(gm.Sequence, 0, 2*purgeBurpPairs)
	for range purgeBurpPairs {
		seq = append(seq,
			gm.CycleStep{Mode: gm.ModePurge, Duration: t.Purge},
			gm.CycleStep{Mode: gm.ModeBurp, Duration: t.Burp},
		)
	}

	return seq
}

// ByName resolves a sequence name from an operator command. The zero name
// maps to the standard run cycle.
func ByName(name string, t Times) (gm.Sequence, bool) {
	switch name {
	case "", NameRunCycle:
		return RunCycle(t), true
	case NameFunctionalityTest:
		return FunctionalityTest(t), true
	case NameLeakTest:
		return LeakTest(t), true
	case NameCanisterClean:
		return CanisterClean(t), true
	case NameTestPurge:
		return TestPurge(t, 5*time.Second), true
	case NameTestRun:
		return TestRun(15*time.Second, 5*time.Second), true
	case NameEfficiencyFill:
		return EfficiencyFillRun(t), true
	case NameEfficiencyPurge:
		return EfficiencyPurge(t), true
	default:
		return nil, false
	}
}

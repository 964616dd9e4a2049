package fault

import (
	"context"
	"sync"
	"time"

	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/logger"
	"github.com/vst-controls/green-machine/internal/metrics"
	"github.com/vst-controls/green-machine/internal/sensors"
)

const (
	// checkInterval is how often the motor current is evaluated.
	checkInterval = 2 * time.Second

	// confirmAfter is how long the current must stay high before a
	// detection counts. Filters the inrush spike at motor start.
	confirmAfter = 2 * time.Second

	// resetAfter is how long the current must stay low before the
	// strike counter resets.
	resetAfter = 2 * time.Second

	// recoveryRest is how long the machine rests between pausing and
	// resuming the cycle on a non-final strike.
	recoveryRest = 2 * time.Second

	// maxStrikes ends monitoring and raises the pump alarm.
	maxStrikes = 3
)

// CyclePauser pauses, resumes and stops the running cycle.
type CyclePauser interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Abort(ctx context.Context) error
}

// Interlock switches the shutdown interlock on behalf of an alarm.
type Interlock interface {
	SetShutdownInterlock(ctx context.Context, on bool, requestedBy gm.AlarmName) error
}

// AlarmRaiser latches the vacuum pump alarm when monitoring gives up.
type AlarmRaiser interface {
	RaiseVacPump(ctx context.Context) error
}

// ProfileSource reports the active equipment profile.
type ProfileSource interface {
	Active(ctx context.Context) gm.Profile
}

// Detector watches the motor current for sustained overdraw. Only
// processor-fault sites (CS9) run it. Each confirmed detection is a
// strike: the first two pause the cycle, rest the machine briefly and
// resume; the third stops the cycle, raises the pump alarm and ends
// monitoring until the strike counter is cleared.
type Detector struct {
	current   sensors.Source
	pauser    CyclePauser
	interlock Interlock
	alarms    AlarmRaiser
	profile   ProfileSource

	threshold float64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	strikes   int
	highSince time.Time
	lowSince  time.Time
	tripped   bool
	stop      chan struct{}
	done      chan struct{}
}

// NewDetector wires the detector to its collaborators. threshold is the
// overdraw current in amps.
func NewDetector(
	current sensors.Source,
	pauser CyclePauser,
	interlock Interlock,
	alarms AlarmRaiser,
	profile ProfileSource,
	threshold float64,
) *Detector {
	return &Detector{
		current:   current,
		pauser:    pauser,
		interlock: interlock,
		alarms:    alarms,
		profile:   profile,
		threshold: threshold,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Start launches the periodic check. Stop ends it.
func (d *Detector) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != nil {
		return
	}

	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	go d.loop(ctx, d.stop, d.done)

	logger.InfoKV(ctx, "motor fault monitoring started", "threshold_amps", d.threshold)
}

// Stop ends the periodic check and waits for the worker to exit.
func (d *Detector) Stop() {
	d.mu.Lock()

	if d.stop == nil {
		d.mu.Unlock()
		return
	}

	stop, done := d.stop, d.done
	d.stop = nil
	d.done = nil
	d.mu.Unlock()

	close(stop)
	<-done
}

// Strikes reports the confirmed detection count. The processor-fault
// alarm condition reads it.
func (d *Detector) Strikes() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.strikes
}

// ClearStrikes resets the counter and re-arms monitoring, used when the
// alarm is cleared by a technician.
func (d *Detector) ClearStrikes(ctx context.Context) {
	d.mu.Lock()
	d.strikes = 0
	d.tripped = false
	d.highSince = time.Time{}
	d.lowSince = time.Time{}
	d.mu.Unlock()

	metrics.SetFaultCount(0)
	logger.Info(ctx, "motor fault strikes cleared")
}

func (d *Detector) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Check(ctx)
		}
	}
}

// Check evaluates one current sample. Exported for the tick loop and tests.
func (d *Detector) Check(ctx context.Context) {
	if d.profile.Active(ctx) != gm.ProfileCS9 {
		d.mu.Lock()
		d.highSince = time.Time{}
		d.lowSince = time.Time{}
		d.mu.Unlock()

		return
	}

	d.mu.Lock()
	if d.tripped {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	reading, ok := d.current.Latest()
	if !ok {
		return
	}

	if reading.Value >= d.threshold {
		d.observeHigh(ctx, reading.Value)
	} else {
		d.observeLow(ctx, reading.Value)
	}
}

func (d *Detector) observeHigh(ctx context.Context, amps float64) {
	now := d.now()

	d.mu.Lock()
	d.lowSince = time.Time{}

	if d.highSince.IsZero() {
		d.highSince = now
		d.mu.Unlock()

		logger.InfoKV(ctx, "high motor current, starting confirmation", "amps", amps)

		return
	}

	if now.Sub(d.highSince) < confirmAfter {
		d.mu.Unlock()
		return
	}

	d.highSince = time.Time{}
	d.strikes++
	strikes := d.strikes
	d.tripped = strikes >= maxStrikes
	d.mu.Unlock()

	metrics.SetFaultCount(strikes)
	logger.WarnKV(ctx, "motor overdraw confirmed", "amps", amps, "strike", strikes)

	if strikes >= maxStrikes {
		d.giveUp(ctx)
	} else {
		d.recover(ctx)
	}
}

func (d *Detector) observeLow(ctx context.Context, amps float64) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.highSince = time.Time{}

	if d.strikes == 0 {
		d.lowSince = time.Time{}
		return
	}

	if d.lowSince.IsZero() {
		d.lowSince = now
		return
	}

	if now.Sub(d.lowSince) < resetAfter {
		return
	}

	logger.InfoKV(ctx, "motor current back to normal, strikes reset",
		"amps", amps, "had_strikes", d.strikes)

	d.strikes = 0
	d.lowSince = time.Time{}

	metrics.SetFaultCount(0)
}

// recover handles a non-final strike: pause, rest with the interlock off,
// then put everything back and resume. If the pause itself fails, the
// strike still stands but the machine is left alone.
func (d *Detector) recover(ctx context.Context) {
	if err := d.pauser.Pause(ctx); err != nil {
		logger.ErrorKV(ctx, "could not pause cycle for fault recovery", "error", err)
		return
	}

	if err := d.interlock.SetShutdownInterlock(ctx, false, gm.AlarmGMFault); err != nil {
		logger.ErrorKV(ctx, "could not drop interlock for fault recovery", "error", err)
	}

	if err := d.sleep(ctx, recoveryRest); err != nil {
		return
	}

	if err := d.interlock.SetShutdownInterlock(ctx, true, gm.AlarmGMFault); err != nil {
		logger.ErrorKV(ctx, "could not restore interlock after fault recovery", "error", err)
	}

	if err := d.pauser.Resume(ctx); err != nil {
		logger.ErrorKV(ctx, "could not resume cycle after fault recovery", "error", err)
	}
}

// giveUp handles the final strike: the cycle stops for good, the pump
// alarm latches and dispensing is disabled.
func (d *Detector) giveUp(ctx context.Context) {
	logger.Error(ctx, "motor overdraw persisted, stopping processor")

	if err := d.pauser.Abort(ctx); err != nil {
		logger.ErrorKV(ctx, "could not stop cycle on final fault", "error", err)
	}

	if err := d.alarms.RaiseVacPump(ctx); err != nil {
		logger.ErrorKV(ctx, "could not raise pump alarm on final fault", "error", err)
	}

	if err := d.interlock.SetShutdownInterlock(ctx, false, gm.AlarmVacPump); err != nil {
		logger.ErrorKV(ctx, "could not drop interlock on final fault", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

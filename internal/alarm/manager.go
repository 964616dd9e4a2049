package alarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/logger"
	"github.com/vst-controls/green-machine/internal/metrics"
	"github.com/vst-controls/green-machine/internal/relay"
	"github.com/vst-controls/green-machine/internal/repository/settings"
	"github.com/vst-controls/green-machine/internal/sensors"
)

const (
	// tickInterval is the alarm evaluation cadence.
	tickInterval = time.Second

	// shutdownCheckInterval is the automatic-shutdown evaluation cadence.
	shutdownCheckInterval = 5 * time.Minute
)

// Controls is the slice of the relay controller the engine drives.
type Controls interface {
	ApplyMode(ctx context.Context, mode gm.Mode) error
	SetShutdownInterlock(ctx context.Context, on bool, requestedBy gm.AlarmName) error
	ForceShutdownInterlock(ctx context.Context, on bool) error
}

// CycleStopper cancels the running cycle.
type CycleStopper interface {
	CancelAndWait(ctx context.Context) error
}

// ProfileSource reports the active equipment profile.
type ProfileSource interface {
	Active(ctx context.Context) gm.Profile
}

// StrikeClearer resets the motor-fault detector when its alarm is cleared.
type StrikeClearer interface {
	ClearStrikes(ctx context.Context)
}

// Notifier receives alarm transitions and shutdown warnings. The service
// forwards them to remote tooling.
type Notifier interface {
	AlarmChanged(ctx context.Context, name gm.AlarmName, active bool)
	ShutdownWarning(ctx context.Context, name gm.AlarmName, remaining time.Duration)
}

// Deps are the collaborators the engine builds its conditions from.
type Deps struct {
	Store    settings.Store
	Pressure sensors.Source
	Overfill *sensors.Flag
	Strikes  StrikeSource
}

// Manager is the alarm engine: it evaluates every armed alarm once a
// second, confirms conditions over their windows, runs per-alarm side
// effects on transitions, and drives the 72-hour automatic shutdown with
// an independent countdown per triggering alarm.
type Manager struct {
	repo     *Repository
	deps     Deps
	controls Controls
	cycle    CycleStopper
	profile  ProfileSource
	notifier Notifier
	strikes  StrikeClearer

	shutdownDelay time.Duration
	now           func() time.Time

	mu     sync.Mutex
	order  []gm.AlarmName
	alarms map[gm.AlarmName]*Alarm
}

// NewManager wires the engine. shutdownDelay is normally 72 hours; test
// sites shorten it through configuration.
func NewManager(
	deps Deps,
	controls Controls,
	cycle CycleStopper,
	profile ProfileSource,
	notifier Notifier,
	strikes StrikeClearer,
	shutdownDelay time.Duration,
) *Manager {
	return &Manager{
		repo:          NewRepository(deps.Store),
		deps:          deps,
		controls:      controls,
		cycle:         cycle,
		profile:       profile,
		notifier:      notifier,
		strikes:       strikes,
		shutdownDelay: shutdownDelay,
		now:           time.Now,
		alarms:        make(map[gm.AlarmName]*Alarm),
	}
}

// ArmProfile rebuilds the armed alarm set for the profile and restores
// persisted state. Shutdown countdowns of alarms that no longer trigger
// the shutdown under this profile are cleared.
func (m *Manager) ArmProfile(ctx context.Context, p gm.Profile) error {
	names := ProfileAlarms(p)

	m.mu.Lock()
	m.order = names
	m.alarms = make(map[gm.AlarmName]*Alarm, len(names))

	for _, name := range names {
		a := NewAlarm(name, m.conditionFor(name), m.repo, m.now)
		if err := a.Restore(ctx); err != nil {
			m.mu.Unlock()
			return err
		}

		m.alarms[name] = a
		metrics.SetAlarmActive(string(name), a.Active())
	}
	m.mu.Unlock()

	triggering := make(map[gm.AlarmName]struct{})
	for _, name := range ShutdownTriggering(p) {
		triggering[name] = struct{}{}
	}

	for _, name := range names {
		if _, ok := triggering[name]; ok {
			continue
		}

		if err := m.repo.ClearShutdownTimer(ctx, name); err != nil {
			return fmt.Errorf("clear stale shutdown timer for %s: %w", name, err)
		}
	}

	logger.InfoKV(ctx, "alarm set armed", "profile", p, "alarms", len(names))

	return nil
}

// conditionFor maps an alarm name to its condition.
func (m *Manager) conditionFor(name gm.AlarmName) Condition {
	switch name {
	case gm.AlarmPressureSensor:
		return PressureSensorFailure(m.deps.Pressure)
	case gm.AlarmVacPump:
		return VacuumPump(m.deps.Store)
	case gm.AlarmOverfill:
		return Overfill(m.deps.Store, m.deps.Overfill, m.now)
	case gm.AlarmDigitalStorage:
		return DigitalStorage(m.deps.Store, m.now)
	case gm.AlarmOverPressure:
		return OverPressure(m.deps.Pressure)
	case gm.AlarmUnderPressure:
		return UnderPressure(m.deps.Pressure)
	case gm.AlarmVariablePressure:
		return VariablePressure(m.deps.Store, m.deps.Pressure)
	case gm.AlarmZeroPressure:
		return ZeroPressure(m.deps.Pressure)
	case gm.AlarmGMFault:
		return ProcessorFault(m.deps.Strikes)
	case gm.AlarmSeventyTwoHour:
		return ShutdownLatched(m.repo)
	default:
		return ConditionFunc(func(context.Context) (bool, error) {
			return false, fmt.Errorf("no condition for alarm %q", name)
		})
	}
}

// Tick evaluates every armed alarm once.
func (m *Manager) Tick(ctx context.Context) {
	for _, name := range m.armedOrder() {
		a := m.alarm(name)
		if a == nil {
			continue
		}

		active, changed, err := a.Update(ctx)
		if err != nil {
			logger.ErrorKV(ctx, "alarm update failed", "alarm", name, "error", err)
		}

		if changed {
			m.onTransition(ctx, name, active)
		}
	}
}

func (m *Manager) armedOrder() []gm.AlarmName {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]gm.AlarmName, len(m.order))
	copy(out, m.order)

	return out
}

func (m *Manager) alarm(name gm.AlarmName) *Alarm {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.alarms[name]
}

// onTransition records and fans out an activation or clearance, then runs
// the alarm's side effects.
func (m *Manager) onTransition(ctx context.Context, name gm.AlarmName, active bool) {
	metrics.SetAlarmActive(string(name), active)

	if active {
		logger.WarnKV(ctx, "alarm activated", "alarm", name)
	} else {
		logger.InfoKV(ctx, "alarm cleared", "alarm", name)
	}

	if m.notifier != nil {
		m.notifier.AlarmChanged(ctx, name, active)
	}

	switch {
	case name == gm.AlarmPressureSensor && active:
		// A dead sensor blinds most of the protection: stop processing
		// and, where the profile allows, stop dispensing too.
		if err := m.cycle.CancelAndWait(ctx); err != nil {
			logger.ErrorKV(ctx, "could not stop cycle on sensor failure", "error", err)
		}

		m.requestInterlock(ctx, false, name)

	case (name == gm.AlarmPressureSensor || name == gm.AlarmVacPump) && !active:
		m.requestInterlock(ctx, true, name)
	}
}

// requestInterlock asks for an interlock change, swallowing permission
// denials: profiles without interlock rights simply skip the side effect.
func (m *Manager) requestInterlock(ctx context.Context, on bool, name gm.AlarmName) {
	err := m.controls.SetShutdownInterlock(ctx, on, name)
	if err != nil && !errors.Is(err, relay.ErrNotPermitted) {
		logger.ErrorKV(ctx, "interlock side effect failed", "alarm", name, "on", on, "error", err)
	}
}

// RaiseVacPump latches the pump alarm immediately, bypassing confirmation.
// The fault detector calls it on the final strike.
func (m *Manager) RaiseVacPump(ctx context.Context) error {
	a := m.alarm(gm.AlarmVacPump)
	if a == nil {
		return fmt.Errorf("vac pump alarm is not armed")
	}

	// Pin the failure count at the limit so the condition keeps holding
	// the alarm up on subsequent ticks; only a technician clear resets it.
	if err := settings.SetInt(ctx, m.deps.Store, "vac_pump_failure_count", pumpFailureLimit); err != nil {
		return fmt.Errorf("pin pump failure count: %w", err)
	}

	changed, err := a.Force(ctx)
	if changed {
		m.onTransition(ctx, gm.AlarmVacPump, true)
	}

	return err
}

// ClearAlarm drops an alarm on a technician's authority, resetting the
// counters feeding it. Clearing the shutdown alarm releases the latch and
// every countdown.
func (m *Manager) ClearAlarm(ctx context.Context, name gm.AlarmName) error {
	a := m.alarm(name)
	if a == nil {
		return fmt.Errorf("alarm %q is not armed", name)
	}

	switch name {
	case gm.AlarmVacPump:
		if err := settings.SetInt(ctx, m.deps.Store, "vac_pump_failure_count", 0); err != nil {
			return err
		}

		if m.strikes != nil {
			m.strikes.ClearStrikes(ctx)
		}
	case gm.AlarmGMFault:
		if m.strikes != nil {
			m.strikes.ClearStrikes(ctx)
		}
	case gm.AlarmSeventyTwoHour:
		if err := m.releaseShutdown(ctx); err != nil {
			return err
		}
	}

	if err := m.repo.ClearShutdownTimer(ctx, name); err != nil {
		return err
	}

	changed, err := a.Clear(ctx)
	if err != nil {
		return err
	}

	if changed {
		m.onTransition(ctx, name, false)
	}

	return nil
}

// releaseShutdown lifts the automatic-shutdown latch and restores
// dispensing.
func (m *Manager) releaseShutdown(ctx context.Context) error {
	if err := m.repo.SetShutdown(ctx, false); err != nil {
		return err
	}

	for _, name := range m.armedOrder() {
		if err := m.repo.ClearShutdownTimer(ctx, name); err != nil {
			return err
		}
	}

	if err := m.controls.ForceShutdownInterlock(ctx, true); err != nil {
		logger.ErrorKV(ctx, "could not restore interlock after shutdown release", "error", err)
	}

	logger.Info(ctx, "automatic shutdown released")

	return nil
}

// CheckShutdown advances every triggering alarm's countdown: each alarm
// that stays continuously active runs its own timer, warnings fire as the
// deadline approaches, and the first countdown to expire latches the
// shutdown. Clearing mid-countdown resets that alarm's timer and re-arms
// its warnings.
func (m *Manager) CheckShutdown(ctx context.Context) {
	p := m.profile.Active(ctx)

	latched, err := m.repo.InShutdown(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "cannot read shutdown latch", "error", err)
		return
	}

	if latched {
		m.maybeReleaseShutdown(ctx, p)
		return
	}

	now := m.now()

	for _, name := range ShutdownTriggering(p) {
		a := m.alarm(name)
		if a == nil || !a.Active() {
			if err := m.repo.ClearShutdownTimer(ctx, name); err != nil {
				logger.ErrorKV(ctx, "cannot reset shutdown timer", "alarm", name, "error", err)
			}

			continue
		}

		start, running, err := m.repo.ShutdownTimerStart(ctx, name)
		if err != nil {
			logger.ErrorKV(ctx, "cannot read shutdown timer", "alarm", name, "error", err)
			continue
		}

		if !running {
			// Anchor at the moment the condition began holding, not at
			// the checker's first observation: the confirmation window
			// and the five-minute cadence must not extend the countdown.
			start = now

			since, confirming, err := m.repo.ConfirmingSince(ctx, name)
			if err != nil {
				logger.ErrorKV(ctx, "cannot read condition start", "alarm", name, "error", err)
				continue
			}

			if confirming {
				start = since
			}

			if err := m.repo.StartShutdownTimer(ctx, name, start); err != nil {
				logger.ErrorKV(ctx, "cannot start shutdown timer", "alarm", name, "error", err)
				continue
			}

			logger.WarnKV(ctx, "shutdown countdown started",
				"alarm", name, "since", start, "delay", m.shutdownDelay)
		}

		remaining := m.shutdownDelay - now.Sub(start)
		if remaining <= 0 {
			m.latchShutdown(ctx, name)
			return
		}

		m.warnIfDue(ctx, name, remaining)
	}
}

// maybeReleaseShutdown reverses the automatic shutdown once no triggering
// alarm still holds an expired countdown: an alarm whose condition went
// away clears itself, and without a held-down cause the site comes back.
// Countdowns of alarms that are still active keep running.
func (m *Manager) maybeReleaseShutdown(ctx context.Context, p gm.Profile) {
	now := m.now()

	for _, name := range ShutdownTriggering(p) {
		a := m.alarm(name)
		if a == nil || !a.Active() {
			continue
		}

		start, running, err := m.repo.ShutdownTimerStart(ctx, name)
		if err != nil {
			logger.ErrorKV(ctx, "cannot read shutdown timer", "alarm", name, "error", err)
			return
		}

		if running && now.Sub(start) >= m.shutdownDelay {
			return
		}
	}

	logger.Info(ctx, "shutdown condition no longer met, releasing")

	if err := m.repo.SetShutdown(ctx, false); err != nil {
		logger.ErrorKV(ctx, "cannot release shutdown latch", "error", err)
		return
	}

	if err := m.controls.ForceShutdownInterlock(ctx, true); err != nil {
		logger.ErrorKV(ctx, "could not restore interlock after shutdown release", "error", err)
	}

	if a := m.alarm(gm.AlarmSeventyTwoHour); a != nil {
		if changed, err := a.Clear(ctx); err != nil {
			logger.ErrorKV(ctx, "cannot drop shutdown alarm", "error", err)
		} else if changed {
			m.onTransition(ctx, gm.AlarmSeventyTwoHour, false)
		}
	}
}

// warnIfDue fires each warning mark once as the countdown passes it.
func (m *Manager) warnIfDue(ctx context.Context, name gm.AlarmName, remaining time.Duration) {
	for _, mark := range warningMarks {
		if remaining > mark || mark >= m.shutdownDelay {
			continue
		}

		warned, err := m.repo.Warned(ctx, name, mark)
		if err != nil || warned {
			continue
		}

		if err := m.repo.SetWarned(ctx, name, mark); err != nil {
			logger.ErrorKV(ctx, "cannot record shutdown warning", "alarm", name, "error", err)
			continue
		}

		logger.WarnKV(ctx, "shutdown approaching", "alarm", name, "remaining", remaining)

		if m.notifier != nil {
			m.notifier.ShutdownWarning(ctx, name, remaining)
		}
	}
}

// latchShutdown forces the site into the shutdown state: cycle stopped,
// machine at rest, dispensing disabled, latch persisted.
func (m *Manager) latchShutdown(ctx context.Context, cause gm.AlarmName) {
	logger.ErrorKV(ctx, "automatic shutdown", "cause", cause)

	if err := m.repo.SetShutdown(ctx, true); err != nil {
		logger.ErrorKV(ctx, "cannot persist shutdown latch", "error", err)
	}

	if err := m.cycle.CancelAndWait(ctx); err != nil {
		logger.ErrorKV(ctx, "cannot stop cycle for shutdown", "error", err)
	}

	if err := m.controls.ApplyMode(ctx, gm.ModeRest); err != nil {
		logger.ErrorKV(ctx, "cannot rest machine for shutdown", "error", err)
	}

	if err := m.controls.ForceShutdownInterlock(ctx, false); err != nil {
		logger.ErrorKV(ctx, "cannot disable dispensing for shutdown", "error", err)
	}

	// The shutdown alarm itself activates on the next tick through its
	// latch condition; surface it immediately instead.
	if a := m.alarm(gm.AlarmSeventyTwoHour); a != nil {
		if changed, err := a.Force(ctx); err != nil {
			logger.ErrorKV(ctx, "cannot latch shutdown alarm", "error", err)
		} else if changed {
			m.onTransition(ctx, gm.AlarmSeventyTwoHour, true)
		}
	}
}

// ActiveAlarms lists the currently active alarms in armed order.
func (m *Manager) ActiveAlarms() []gm.AlarmName {
	var out []gm.AlarmName

	for _, name := range m.armedOrder() {
		if a := m.alarm(name); a != nil && a.Active() {
			out = append(out, name)
		}
	}

	return out
}

// InShutdown reports the automatic-shutdown latch.
func (m *Manager) InShutdown(ctx context.Context) (bool, error) {
	return m.repo.InShutdown(ctx)
}

// ShiftStartTimes moves every running timer by delta after a wall-clock
// correction.
func (m *Manager) ShiftStartTimes(ctx context.Context, delta time.Duration) error {
	return m.repo.ShiftTimers(ctx, m.armedOrder(), delta)
}

// Run drives the engine until ctx is done: alarms every second, the
// shutdown countdown every five minutes.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	shutdownTicker := time.NewTicker(shutdownCheckInterval)
	defer shutdownTicker.Stop()

	// Evaluate immediately so a restart does not wait out a full
	// shutdown-check interval.
	m.Tick(ctx)
	m.CheckShutdown(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		case <-shutdownTicker.C:
			m.CheckShutdown(ctx)
		}
	}
}

package controller

import (
	"context"
	"time"

	"github.com/vst-controls/green-machine/internal/alarm"
	"github.com/vst-controls/green-machine/internal/cycle"
	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/link"
	"github.com/vst-controls/green-machine/internal/logger"
	"github.com/vst-controls/green-machine/internal/relay"
)

// sequencedRelay is the mode applier the rest of the engine drives. On top
// of the relay controller it arms the purge current supervisor and mirrors
// the mode to the board firmware, which holds its own table as a backstop
// against a dead controller.
type sequencedRelay struct {
	*relay.Controller

	purge *cycle.PurgeSupervisor
	link  *link.Link
}

var (
	_ cycle.ModeApplier = (*sequencedRelay)(nil)
	_ alarm.Controls    = (*sequencedRelay)(nil)
)

func (r *sequencedRelay) ApplyMode(ctx context.Context, mode gm.Mode) error {
	if err := r.Controller.ApplyMode(ctx, mode); err != nil {
		return err
	}

	r.purge.ModeChanged(ctx, mode)

	if r.link != nil {
		if err := r.link.SendMode(ctx, mode); err != nil {
			logger.WarnKV(ctx, "could not mirror mode to board", "mode", mode, "error", err)
		}
	}

	return nil
}

// cycleGovernor adapts the pause machinery to the fault detector: pauses
// snapshot through the state manager so an interrupted recovery still
// resumes after a restart, aborts drop the cycle entirely.
type cycleGovernor struct {
	states *cycle.StateManager
	seq    *cycle.Sequencer
}

func (g *cycleGovernor) Pause(ctx context.Context) error {
	return g.states.Pause(ctx)
}

func (g *cycleGovernor) Resume(ctx context.Context) error {
	return g.states.Resume(ctx)
}

func (g *cycleGovernor) Abort(ctx context.Context) error {
	return g.seq.CancelAndWait(ctx)
}

// lateAlarms defers the alarm manager reference: the fault detector needs
// it before the manager exists, because the manager reads the detector's
// strike count.
type lateAlarms struct {
	alarms *alarm.Manager
}

func (a *lateAlarms) RaiseVacPump(ctx context.Context) error {
	return a.alarms.RaiseVacPump(ctx)
}

// eventPublisher forwards alarm transitions and shutdown warnings to the
// operator event topic. The enforced-shutdown latch is also mirrored to
// the board so its firmware can hold the site down on its own.
type eventPublisher struct {
	link *link.Link
}

func (p *eventPublisher) AlarmChanged(ctx context.Context, name gm.AlarmName, active bool) {
	if name == gm.AlarmSeventyTwoHour && active {
		if err := p.link.SendShutdown(ctx); err != nil {
			logger.ErrorKV(ctx, "could not mirror shutdown to board", "error", err)
		}
	}

	err := p.link.PublishAlarmEvent(ctx, link.AlarmEvent{
		Alarm:  string(name),
		Active: active,
	})
	if err != nil {
		logger.WarnKV(ctx, "could not publish alarm event", "alarm", name, "error", err)
	}
}

func (p *eventPublisher) ShutdownWarning(ctx context.Context, name gm.AlarmName, remaining time.Duration) {
	err := p.link.PublishAlarmEvent(ctx, link.AlarmEvent{
		Alarm:   string(name),
		Active:  true,
		Warning: remaining.Round(time.Minute).String(),
	})
	if err != nil {
		logger.WarnKV(ctx, "could not publish shutdown warning", "alarm", name, "error", err)
	}
}

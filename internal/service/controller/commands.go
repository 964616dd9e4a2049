package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vst-controls/green-machine/internal/cycle"
	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/link"
	"github.com/vst-controls/green-machine/internal/logger"
	"github.com/vst-controls/green-machine/internal/repository/settings"
)

// Run-cycle bookkeeping keys in the settings store.
const (
	keyRunCycleCount = "run_cycle_count"
	keyLastRunCycle  = "last_run_cycle"
)

var (
	errShutdownLatched = errors.New("site is in enforced shutdown")
	errCycleRunning    = errors.New("a cycle is running")
	errNoBoardLink     = errors.New("no board link configured")
)

// handleCommand dispatches one operator command. Failures are logged, not
// returned: the operator channel is fire-and-forget.
func (s *Service) handleCommand(ctx context.Context, cmd link.Command) {
	logger.InfoKV(ctx, "operator command", "action", cmd.Action)

	var err error

	switch cmd.Action {
	case link.ActionRunCycle:
		err = s.startSequence(ctx, cmd.Sequence)
	case link.ActionStop:
		err = s.stopCycle(ctx)
	case link.ActionMode:
		err = s.setMode(ctx, cmd.Mode)
	case link.ActionPause:
		err = s.states.Pause(ctx)
	case link.ActionResume:
		err = s.states.Resume(ctx)
	case link.ActionProfile:
		err = s.changeProfile(ctx, cmd.Profile)
	case link.ActionCalibrate:
		err = s.calibrate(ctx)
	case link.ActionClearAlarm:
		err = s.alarms.ClearAlarm(ctx, gm.AlarmName(cmd.Alarm))
	default:
		err = fmt.Errorf("unknown action %q", cmd.Action)
	}

	if err != nil {
		logger.ErrorKV(ctx, "operator command failed", "action", cmd.Action, "error", err)
	}
}

// startSequence starts a named sequence from the catalog. An empty name
// selects the standard run cycle, which also bumps the run counters.
func (s *Service) startSequence(ctx context.Context, name string) error {
	latched, err := s.alarms.InShutdown(ctx)
	if err != nil {
		return err
	}

	if latched {
		return errShutdownLatched
	}

	if name == "" {
		name = cycle.NameRunCycle
	}

	seq, ok := cycle.ByName(name, s.times)
	if !ok {
		return fmt.Errorf("unknown sequence %q", name)
	}

	if err := s.seq.Start(ctx, name, seq, false); err != nil {
		return err
	}

	if name == cycle.NameRunCycle {
		if err := s.recordRunCycle(ctx); err != nil {
			logger.WarnKV(ctx, "run-cycle bookkeeping failed", "error", err)
		}
	}

	return nil
}

func (s *Service) recordRunCycle(ctx context.Context) error {
	n, err := settings.GetInt(ctx, s.store, keyRunCycleCount, 0)
	if err != nil {
		return err
	}

	if err := settings.SetInt(ctx, s.store, keyRunCycleCount, n+1); err != nil {
		return err
	}

	return settings.SetTime(ctx, s.store, keyLastRunCycle, time.Now())
}

// stopCycle cancels the running cycle and discards any pause snapshot.
func (s *Service) stopCycle(ctx context.Context) error {
	if err := s.seq.CancelAndWait(ctx); err != nil {
		return err
	}

	return s.states.Clear(ctx)
}

// setMode drives the machine into a mode by hand. Refused while a cycle
// is running or the site is shut down.
func (s *Service) setMode(ctx context.Context, name string) error {
	latched, err := s.alarms.InShutdown(ctx)
	if err != nil {
		return err
	}

	if latched {
		return errShutdownLatched
	}

	if s.seq.Running() {
		return errCycleRunning
	}

	mode, err := gm.ParseMode(name)
	if err != nil {
		return err
	}

	return s.applier.ApplyMode(ctx, mode)
}

func (s *Service) changeProfile(ctx context.Context, name string) error {
	p := gm.Profile(name)
	if !p.Valid() {
		return fmt.Errorf("unknown equipment profile %q", name)
	}

	return s.profiles.Change(ctx, p)
}

func (s *Service) calibrate(ctx context.Context) error {
	if s.link == nil {
		return errNoBoardLink
	}

	return s.link.SendCalibrate(ctx)
}

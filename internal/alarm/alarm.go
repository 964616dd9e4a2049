package alarm

import (
	"context"
	"fmt"
	"time"

	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/logger"
)

// Alarm couples one condition with its confirmation window and persisted
// state. The condition must hold continuously for the whole window before
// the alarm activates; any gap restarts the window.
type Alarm struct {
	Name     gm.AlarmName
	Duration time.Duration

	cond   Condition
	repo   *Repository
	now    func() time.Time
	active bool
}

// NewAlarm builds the alarm with the catalog confirmation window.
func NewAlarm(name gm.AlarmName, cond Condition, repo *Repository, now func() time.Time) *Alarm {
	if now == nil {
		now = time.Now
	}

	return &Alarm{
		Name:     name,
		Duration: ConfirmDuration(name),
		cond:     cond,
		repo:     repo,
		now:      now,
	}
}

// Restore loads the persisted active flag, so alarms survive a restart.
func (a *Alarm) Restore(ctx context.Context) error {
	active, err := a.repo.Active(ctx, a.Name)
	if err != nil {
		return fmt.Errorf("restore %s: %w", a.Name, err)
	}

	a.active = active

	return nil
}

// Active reports the alarm state as of the last Update or Restore.
func (a *Alarm) Active() bool {
	return a.active
}

// Update evaluates the condition once. changed reports an activation or
// clearance this call. A condition error counts as the condition being
// true, so a broken collaborator can never hold an alarm off.
func (a *Alarm) Update(ctx context.Context) (active, changed bool, err error) {
	hot, condErr := a.cond.Check(ctx)
	if condErr != nil {
		logger.WarnKV(ctx, "alarm condition unreadable, treating as tripped",
			"alarm", a.Name, "error", condErr)

		hot = true
	}

	if !hot {
		if err := a.repo.StopConfirming(ctx, a.Name); err != nil {
			return a.active, false, err
		}

		if !a.active {
			return false, false, nil
		}

		a.active = false
		if err := a.repo.SetActive(ctx, a.Name, false); err != nil {
			return false, true, err
		}

		return false, true, nil
	}

	now := a.now()

	since, confirming, err := a.repo.ConfirmingSince(ctx, a.Name)
	if err != nil {
		return a.active, false, err
	}

	if !confirming {
		since = now
		if err := a.repo.StartConfirming(ctx, a.Name, now); err != nil {
			return a.active, false, err
		}
	}

	if a.active || now.Sub(since) < a.Duration {
		return a.active, false, nil
	}

	a.active = true
	if err := a.repo.SetActive(ctx, a.Name, true); err != nil {
		return true, true, err
	}

	return true, true, nil
}

// Force latches the alarm immediately, bypassing confirmation. changed is
// false when it was already active.
func (a *Alarm) Force(ctx context.Context) (changed bool, err error) {
	if a.active {
		return false, nil
	}

	a.active = true
	if err := a.repo.SetActive(ctx, a.Name, true); err != nil {
		return true, err
	}

	return true, nil
}

// Clear drops the alarm and its confirmation window immediately.
func (a *Alarm) Clear(ctx context.Context) (changed bool, err error) {
	if err := a.repo.StopConfirming(ctx, a.Name); err != nil {
		return false, err
	}

	if !a.active {
		return false, nil
	}

	a.active = false
	if err := a.repo.SetActive(ctx, a.Name, false); err != nil {
		return true, err
	}

	return true, nil
}

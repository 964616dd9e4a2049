package alarm

import (
	"context"
	"fmt"
	"time"

	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/repository/settings"
)

// Settings keys. Alarm names double as key prefixes so the stored state
// stays readable in the database.
const (
	suffixActive     = "_alarm"
	suffixConfirming = "_start_time"
	prefixShutdown   = "shutdown_timer_"
	prefixWarned     = "shutdown_warned_"
	keyShutdown      = "system_shutdown"
)

// Repository persists alarm state: active flags, confirmation timers, the
// per-alarm shutdown timers and the shutdown latch. Everything survives a
// restart so confirmation windows and the 72-hour countdown keep running.
type Repository struct {
	store settings.Store
}

// NewRepository wraps the settings store.
func NewRepository(store settings.Store) *Repository {
	return &Repository{store: store}
}

// Active reports the persisted active flag.
func (r *Repository) Active(ctx context.Context, name gm.AlarmName) (bool, error) {
	return settings.GetBool(ctx, r.store, string(name)+suffixActive, false)
}

// SetActive persists the active flag.
func (r *Repository) SetActive(ctx context.Context, name gm.AlarmName, active bool) error {
	return settings.SetBool(ctx, r.store, string(name)+suffixActive, active)
}

// ConfirmingSince reports when the alarm's condition first became true.
func (r *Repository) ConfirmingSince(ctx context.Context, name gm.AlarmName) (time.Time, bool, error) {
	return settings.GetTime(ctx, r.store, string(name)+suffixConfirming)
}

// StartConfirming records the beginning of a confirmation window.
func (r *Repository) StartConfirming(ctx context.Context, name gm.AlarmName, at time.Time) error {
	return settings.SetTime(ctx, r.store, string(name)+suffixConfirming, at)
}

// StopConfirming clears the confirmation window.
func (r *Repository) StopConfirming(ctx context.Context, name gm.AlarmName) error {
	return r.store.Delete(ctx, string(name)+suffixConfirming)
}

// ShutdownTimerStart reports when the named alarm started counting toward
// the automatic shutdown.
func (r *Repository) ShutdownTimerStart(ctx context.Context, name gm.AlarmName) (time.Time, bool, error) {
	return settings.GetTime(ctx, r.store, prefixShutdown+string(name))
}

// StartShutdownTimer records the beginning of an alarm's shutdown countdown.
func (r *Repository) StartShutdownTimer(ctx context.Context, name gm.AlarmName, at time.Time) error {
	return settings.SetTime(ctx, r.store, prefixShutdown+string(name), at)
}

// ClearShutdownTimer stops an alarm's shutdown countdown and re-arms its
// warnings.
func (r *Repository) ClearShutdownTimer(ctx context.Context, name gm.AlarmName) error {
	if err := r.store.Delete(ctx, prefixShutdown+string(name)); err != nil {
		return err
	}

	return r.clearWarnings(ctx, name)
}

// Warned reports whether the mark's warning already fired for the alarm.
func (r *Repository) Warned(ctx context.Context, name gm.AlarmName, mark time.Duration) (bool, error) {
	return settings.GetBool(ctx, r.store, r.warnKey(name, mark), false)
}

// SetWarned records that the mark's warning fired.
func (r *Repository) SetWarned(ctx context.Context, name gm.AlarmName, mark time.Duration) error {
	return settings.SetBool(ctx, r.store, r.warnKey(name, mark), true)
}

func (r *Repository) warnKey(name gm.AlarmName, mark time.Duration) string {
	return fmt.Sprintf("%s%s_%dh", prefixWarned, name, int(mark.Hours()))
}

func (r *Repository) clearWarnings(ctx context.Context, name gm.AlarmName) error {
	for _, mark := range warningMarks {
		if err := r.store.Delete(ctx, r.warnKey(name, mark)); err != nil {
			return err
		}
	}

	return nil
}

// InShutdown reports the automatic-shutdown latch.
func (r *Repository) InShutdown(ctx context.Context) (bool, error) {
	return settings.GetBool(ctx, r.store, keyShutdown, false)
}

// SetShutdown sets or clears the automatic-shutdown latch.
func (r *Repository) SetShutdown(ctx context.Context, latched bool) error {
	return settings.SetBool(ctx, r.store, keyShutdown, latched)
}

// ShiftTimers moves every persisted timestamp by delta. Called when the
// wall clock is corrected so confirmation windows and shutdown countdowns
// keep their true elapsed time.
func (r *Repository) ShiftTimers(ctx context.Context, names []gm.AlarmName, delta time.Duration) error {
	for _, name := range names {
		for _, key := range []string{
			string(name) + suffixConfirming,
			prefixShutdown + string(name),
		} {
			at, found, err := settings.GetTime(ctx, r.store, key)
			if err != nil {
				return err
			}

			if !found {
				continue
			}

			if err := settings.SetTime(ctx, r.store, key, at.Add(delta)); err != nil {
				return err
			}
		}
	}

	return nil
}

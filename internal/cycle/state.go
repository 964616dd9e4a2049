package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/logger"
	"github.com/vst-controls/green-machine/internal/repository/settings"
)

// Settings keys for the paused-cycle snapshot.
const (
	keyPauseState = "cycle_pause_state"
	keyIsPaused   = "cycle_is_paused"
)

// State manager errors.
var (
	// ErrNotRunning is returned when there is no cycle to pause.
	ErrNotRunning = errors.New("no cycle is running")
	// ErrNoSavedState is returned when there is no paused cycle to resume.
	ErrNoSavedState = errors.New("no paused cycle state")
)

// savedStep is the persisted form of one sequence step.
type savedStep struct {
	Mode    string  `json:"mode"`
	Seconds float64 `json:"seconds"`
}

// SavedState is the snapshot of a paused cycle.
type SavedState struct {
	Name    string      `json:"name"`
	Steps   []savedStep `json:"steps"`
	Step    int         `json:"step"`
	Elapsed float64     `json:"elapsed_seconds"`
	Manual  bool        `json:"manual"`
	Paused  time.Time   `json:"paused_at"`
}

// StateManager pauses and resumes cycles across restarts. A pause cancels
// the running sequence after snapshotting how far it got; a resume rebuilds
// the remainder, with the interrupted step shortened by its elapsed time.
type StateManager struct {
	repo settings.Store
	seq  *Sequencer
	now  func() time.Time
}

// NewStateManager wires the manager to the sequencer and the settings store.
func NewStateManager(repo settings.Store, seq *Sequencer) *StateManager {
	return &StateManager{repo: repo, seq: seq, now: time.Now}
}

// Pause snapshots the running cycle and cancels it. The machine ends up
// in rest with the snapshot persisted.
func (m *StateManager) Pause(ctx context.Context) error {
	progress, ok := m.seq.Progress()
	if !ok {
		return ErrNotRunning
	}

	if err := m.save(ctx, progress); err != nil {
		return err
	}

	if err := m.seq.CancelAndWait(ctx); err != nil {
		return fmt.Errorf("cancel for pause: %w", err)
	}

	logger.InfoKV(ctx, "cycle paused",
		"run_id", progress.RunID, "step", progress.Step, "elapsed", progress.Elapsed)

	return nil
}

// Resume restarts a paused cycle from its snapshot and clears the snapshot.
func (m *StateManager) Resume(ctx context.Context) error {
	saved, found, err := m.Load(ctx)
	if err != nil {
		return err
	}

	if !found {
		return ErrNoSavedState
	}

	seq, err := ResumeSequence(saved)
	if err != nil {
		// A snapshot we cannot decode will never become resumable.
		logger.ErrorKV(ctx, "discarding unusable pause snapshot", "error", err)

		if clearErr := m.Clear(ctx); clearErr != nil {
			return clearErr
		}

		return err
	}

	if len(seq) == 0 {
		logger.Warn(ctx, "paused cycle had nothing left to run")
		return m.Clear(ctx)
	}

	if err := m.seq.Start(ctx, saved.Name, seq, saved.Manual); err != nil {
		return fmt.Errorf("restart paused cycle: %w", err)
	}

	logger.InfoKV(ctx, "cycle resumed", "sequence", saved.Name, "remaining_steps", len(seq))

	return m.Clear(ctx)
}

// Paused reports whether a pause snapshot exists.
func (m *StateManager) Paused(ctx context.Context) (bool, error) {
	return settings.GetBool(ctx, m.repo, keyIsPaused, false)
}

// Load reads the pause snapshot.
func (m *StateManager) Load(ctx context.Context) (SavedState, bool, error) {
	var saved SavedState

	found, err := settings.GetJSON(ctx, m.repo, keyPauseState, &saved)
	if err != nil {
		return SavedState{}, false, fmt.Errorf("load pause snapshot: %w", err)
	}

	return saved, found, nil
}

// Clear removes the pause snapshot. Clearing an absent snapshot is fine.
func (m *StateManager) Clear(ctx context.Context) error {
	if err := m.repo.Delete(ctx, keyPauseState); err != nil {
		return fmt.Errorf("clear pause snapshot: %w", err)
	}

	return settings.SetBool(ctx, m.repo, keyIsPaused, false)
}

func (m *StateManager) save(ctx context.Context, p Progress) error {
	steps := make([]savedStep, len(p.Sequence))
	for i, step := range p.Sequence {
		steps[i] = savedStep{Mode: step.Mode.String(), Seconds: step.Duration.Seconds()}
	}

	saved := SavedState{
		Name:    p.Name,
		Steps:   steps,
		Step:    p.Step,
		Elapsed: p.Elapsed.Seconds(),
		Manual:  p.Manual,
		Paused:  m.now(),
	}

	if err := settings.SetJSON(ctx, m.repo, keyPauseState, saved); err != nil {
		return fmt.Errorf("save pause snapshot: %w", err)
	}

	return settings.SetBool(ctx, m.repo, keyIsPaused, true)
}

// ResumeSequence rebuilds the remainder of a paused cycle: the interrupted
// step keeps only its unserved time, and fully served steps are dropped.
func ResumeSequence(saved SavedState) (gm.Sequence, error) {
	if saved.Step < 0 || saved.Step >= len(saved.Steps) {
		return nil, fmt.Errorf("pause snapshot step %d out of range", saved.Step)
	}

	seq := make(gm.Sequence, 0, len(saved.Steps)-saved.Step)

	for i := saved.Step; i < len(saved.Steps); i++ {
		mode, err := gm.ParseMode(saved.Steps[i].Mode)
		if err != nil {
			return nil, fmt.Errorf("pause snapshot step %d: %w", i, err)
		}

		duration := time.Duration(saved.Steps[i].Seconds * float64(time.Second))
		if i == saved.Step {
			duration -= time.Duration(saved.Elapsed * float64(time.Second))
		}

		if duration <= 0 {
			continue
		}

		seq = append(seq, gm.CycleStep{Mode: mode, Duration: duration})
	}

	return seq, nil
}

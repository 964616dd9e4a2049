package profile

import (
	"context"
	"fmt"
	"sync"

	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/logger"
	"github.com/vst-controls/green-machine/internal/repository/settings"
)

// settingsKey is where the active profile is persisted.
const settingsKey = "equipment_profile"

// ChangeHook is called after the active profile changes. Hooks rearm the
// alarm catalog, reconcile the interlock and restart the fault detector.
type ChangeHook func(ctx context.Context, previous, active gm.Profile)

// Store holds the active equipment profile, persists changes, and fans
// them out to registered hooks.
type Store struct {
	repo settings.Store

	mu     sync.RWMutex
	active gm.Profile
	hooks  []ChangeHook
}

// NewStore loads the persisted profile, falling back to def.
func NewStore(ctx context.Context, repo settings.Store, def gm.Profile) (*Store, error) {
	if !def.Valid() {
		return nil, fmt.Errorf("invalid default profile %q", def)
	}

	active := def

	raw, found, err := repo.Get(ctx, settingsKey)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	if found {
		p := gm.Profile(raw)
		if p.Valid() {
			active = p
		} else {
			logger.WarnKV(ctx, "ignoring unknown persisted profile", "profile", raw)
		}
	}

	return &Store{repo: repo, active: active}, nil
}

// Active returns the current equipment profile.
func (s *Store) Active(context.Context) gm.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.active
}

// OnChange registers a hook. Registration is not safe concurrently with
// Change; wire all hooks during startup.
func (s *Store) OnChange(hook ChangeHook) {
	s.hooks = append(s.hooks, hook)
}

// Change switches the active profile, persists it and runs the hooks.
// Switching to the already-active profile is a no-op.
func (s *Store) Change(ctx context.Context, p gm.Profile) error {
	if !p.Valid() {
		return fmt.Errorf("invalid profile %q", p)
	}

	s.mu.Lock()
	previous := s.active

	if previous == p {
		s.mu.Unlock()
		return nil
	}

	if err := s.repo.Set(ctx, settingsKey, string(p)); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist profile: %w", err)
	}

	s.active = p
	s.mu.Unlock()

	logger.InfoKV(ctx, "equipment profile changed", "from", previous, "to", p)

	for _, hook := range s.hooks {
		hook(ctx, previous, p)
	}

	return nil
}

package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/repository/settings"
)

// TestNewStore_LoadsPersistedProfile verifies the persisted value wins
// over the default and unknown values are ignored.
func TestNewStore_LoadsPersistedProfile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := settings.NewMemoryStore()

	store, err := NewStore(ctx, repo, gm.ProfileCS8)
	require.NoError(t, err)
	require.Equal(t, gm.ProfileCS8, store.Active(ctx))

	require.NoError(t, repo.Set(ctx, settingsKey, "CS9"))
	store, err = NewStore(ctx, repo, gm.ProfileCS8)
	require.NoError(t, err)
	require.Equal(t, gm.ProfileCS9, store.Active(ctx))

	require.NoError(t, repo.Set(ctx, settingsKey, "CS99"))
	store, err = NewStore(ctx, repo, gm.ProfileCS8)
	require.NoError(t, err)
	require.Equal(t, gm.ProfileCS8, store.Active(ctx))
}

// TestChange_PersistsAndNotifies verifies persistence, hook fan-out and
// no-op behavior on the active profile.
func TestChange_PersistsAndNotifies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := settings.NewMemoryStore()

	store, err := NewStore(ctx, repo, gm.ProfileCS8)
	require.NoError(t, err)

	var calls int

	store.OnChange(func(_ context.Context, previous, active gm.Profile) {
		calls++
		require.Equal(t, gm.ProfileCS8, previous)
		require.Equal(t, gm.ProfileCS9, active)
	})

	require.NoError(t, store.Change(ctx, gm.ProfileCS9))
	require.Equal(t, 1, calls)
	require.Equal(t, gm.ProfileCS9, store.Active(ctx))

	raw, found, err := repo.Get(ctx, settingsKey)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "CS9", raw)

	// Re-selecting the active profile must not fire the hooks again.
	require.NoError(t, store.Change(ctx, gm.ProfileCS9))
	require.Equal(t, 1, calls)

	require.Error(t, store.Change(ctx, "CS0"))
}

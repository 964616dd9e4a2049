package modestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/repository/settings"
)

func openTestStore(t *testing.T, path string) (*Store, *settings.MemoryStore) {
	t.Helper()

	fallback := settings.NewMemoryStore()

	store, err := Open(context.Background(), path, fallback)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	return store, fallback
}

// TestStore_DefaultsToRest verifies a fresh store reports the safe mode.
func TestStore_DefaultsToRest(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t, filepath.Join(t.TempDir(), "mode.bin"))
	require.Equal(t, gm.ModeRest, store.Get(context.Background()))
}

// TestStore_SetGet verifies the round trip and the durable copy.
func TestStore_SetGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, fallback := openTestStore(t, filepath.Join(t.TempDir(), "mode.bin"))

	require.NoError(t, store.Set(ctx, gm.ModePurge))
	require.Equal(t, gm.ModePurge, store.Get(ctx))

	raw, found, err := fallback.Get(ctx, fallbackKey)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "purge", raw)
}

// TestStore_RejectsUnknownMode verifies invalid modes are not persisted.
func TestStore_RejectsUnknownMode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := openTestStore(t, filepath.Join(t.TempDir(), "mode.bin"))

	require.ErrorIs(t, store.Set(ctx, gm.Mode(77)), gm.ErrUnknownMode)
	require.Equal(t, gm.ModeRest, store.Get(ctx))
}

// TestStore_CrossInstanceVisibility verifies two mappings of the same file
// observe each other's writes, as separate processes would.
func TestStore_CrossInstanceVisibility(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mode.bin")

	writer, _ := openTestStore(t, path)
	reader, _ := openTestStore(t, path)

	require.NoError(t, writer.Set(ctx, gm.ModeLeak))
	require.Equal(t, gm.ModeLeak, reader.Get(ctx))
}

// TestStore_SeedsFromDurableCopy verifies a fresh shared file picks up the
// mode persisted before a reboot.
func TestStore_SeedsFromDurableCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fallback := settings.NewMemoryStore()
	require.NoError(t, fallback.Set(ctx, fallbackKey, "run"))

	store, err := Open(ctx, filepath.Join(t.TempDir(), "mode.bin"), fallback)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	require.Equal(t, gm.ModeRun, store.Get(ctx))
}

// TestStore_SetSurvivesDurableFailure verifies the shared file alone is
// enough for Set to succeed.
func TestStore_SetSurvivesDurableFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, fallback := openTestStore(t, filepath.Join(t.TempDir(), "mode.bin"))

	fallback.FailNext = errors.New("disk full")
	require.NoError(t, store.Set(ctx, gm.ModeBurp))
	require.Equal(t, gm.ModeBurp, store.Get(ctx))
}

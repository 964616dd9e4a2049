package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vst-controls/green-machine/internal/domain/gm"
)

// TestValidate_FillsDefaults verifies that an empty configuration
// is completed with the documented defaults.
func TestValidate_FillsDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	require.NoError(t, Validate(cfg))

	require.Equal(t, DefaultDataDir, cfg.DataDir)
	require.Equal(t, DefaultModeStorePath, cfg.ModeStorePath)
	require.Equal(t, DefaultTopicPrefix, cfg.TopicPrefix)
	require.Equal(t, DefaultTimeout, cfg.Timeout)
	require.Equal(t, DefaultShutdownDelay, cfg.ShutdownDelay)
	require.InDelta(t, DefaultHighCurrentThreshold, cfg.HighCurrentThreshold, 1e-9)
	require.Equal(t, gm.ProfileCS8, cfg.Profile)
}

// TestValidate_RejectsUnknownProfile verifies that a profile outside
// the catalog fails validation.
func TestValidate_RejectsUnknownProfile(t *testing.T) {
	t.Parallel()

	cfg := &Config{Profile: "CS99"}
	require.ErrorIs(t, Validate(cfg), errUnknownProfile)
}

// TestValidate_NilConfig verifies nil handling.
func TestValidate_NilConfig(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Validate(nil), errConfigIsNotSet)
	require.ErrorIs(t, Save("whatever.yaml", nil), errConfigIsNotSet)
}

// TestSaveLoad_RoundTrip verifies that a saved configuration loads back
// with the same values.
func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")

	saved := &Config{
		DataDir:              "/var/lib/green-machine",
		ModeStorePath:        "/run/gm_mode.bin",
		BrokerURL:            "tcp://127.0.0.1:1883",
		TopicPrefix:          "site42",
		MetricsAddress:       ":9402",
		Profile:              gm.ProfileCS9,
		Timeout:              3 * time.Second,
		ShutdownDelay:        72 * time.Hour,
		HighCurrentThreshold: 20.0,
		Debug:                true,
	}
	require.NoError(t, Save(path, saved))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, saved, loaded)
}

// TestLoad_MissingFile verifies that loading a nonexistent file fails.
func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

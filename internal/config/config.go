package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vst-controls/green-machine/internal/domain/gm"
)

// Config holds the controller settings shared by the green-machine binaries.
type Config struct {
	// DataDir is the directory holding the persistent settings database.
	DataDir string `yaml:"data_dir"`
	// ModeStorePath is the shared memory-mapped file holding the current mode.
	ModeStorePath string `yaml:"mode_store_path"`
	// BrokerURL is the MQTT broker used for the relay/telemetry link.
	BrokerURL string `yaml:"broker_url"`
	// TopicPrefix namespaces all link topics (commands, status, events).
	TopicPrefix string `yaml:"topic_prefix"`
	// MetricsAddress is the listen address for the Prometheus endpoint.
	// Empty disables the metrics listener.
	MetricsAddress string `yaml:"metrics_addr"`
	// Profile selects the equipment profile (CS2, CS8, CS9, CS12).
	Profile gm.Profile `yaml:"profile"`
	// Timeout bounds link operations (connect, publish).
	Timeout time.Duration `yaml:"timeout"`
	// ShutdownDelay is the continuous-alarm duration that forces the
	// automatic shutdown. Only lowered on test sites.
	ShutdownDelay time.Duration `yaml:"shutdown_delay"`
	// HighCurrentThreshold is the motor current (amps) treated as a fault candidate.
	HighCurrentThreshold float64 `yaml:"high_current_threshold"`
	// Debug shortens cycle and alarm timings for bench testing.
	Debug bool `yaml:"debug"`
}

const (
	// DefaultConfigFilename is the default filename for controller settings.
	DefaultConfigFilename = "green-machine-settings.yaml"

	// DefaultDataDir is the default directory for the settings database.
	DefaultDataDir = "data"

	// DefaultModeStorePath is the default shared mode file location.
	DefaultModeStorePath = "/tmp/gm_mode.bin"

	// DefaultTopicPrefix is the default MQTT topic namespace.
	DefaultTopicPrefix = "greenmachine"

	// DefaultTimeout is the default duration for link operations.
	DefaultTimeout = 5 * time.Second

	// DefaultShutdownDelay is the regulatory 72-hour shutdown window.
	DefaultShutdownDelay = 72 * time.Hour

	// DefaultHighCurrentThreshold is the fault-candidate motor current in amps.
	DefaultHighCurrentThreshold = 20.0

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownProfile is returned when the profile value is not in the catalog.
	errUnknownProfile = errors.New("unknown equipment profile")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields
// and fills in defaults for everything optional.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}

	if cfg.ModeStorePath == "" {
		cfg.ModeStorePath = DefaultModeStorePath
	}

	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.ShutdownDelay <= 0 {
		cfg.ShutdownDelay = DefaultShutdownDelay
	}

	if cfg.HighCurrentThreshold <= 0 {
		cfg.HighCurrentThreshold = DefaultHighCurrentThreshold
	}

	if cfg.Profile == "" {
		cfg.Profile = gm.ProfileCS8
	}

	if !cfg.Profile.Valid() {
		return fmt.Errorf("%w: %q", errUnknownProfile, cfg.Profile)
	}

	// The broker is optional: without it the controller degrades to the
	// local loopback actuator port.
	if cfg.BrokerURL != "" {
		if _, err := url.Parse(cfg.BrokerURL); err != nil {
			return fmt.Errorf("invalid broker URL: %w", err)
		}
	}

	return nil
}

package controller

import (
	"context"
	"fmt"

	"github.com/vst-controls/green-machine/internal/config"
	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/logger"
)

// Options controls the gm-controller process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Profile provides an optional equipment-profile override.
	Profile string
	// Debug shortens cycle and alarm timings for bench testing.
	Debug bool
}

// Run starts the controller and blocks until the context is canceled.
// Loads configuration first, then wires and runs the engine.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "gm-controller")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if opts.Profile != "" {
		p := gm.Profile(opts.Profile)
		if !p.Valid() {
			return fmt.Errorf("unknown equipment profile %q", opts.Profile)
		}

		cfg.Profile = p
	}

	if opts.Debug {
		cfg.Debug = true
	}

	svc, err := newService(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}
	defer svc.close(ctx)

	return svc.run(ctx)
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vst-controls/green-machine/internal/config"
	"github.com/vst-controls/green-machine/internal/logger"
	"github.com/vst-controls/green-machine/internal/service/controller"
	"github.com/vst-controls/green-machine/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// profileOverride replaces the configured equipment profile.
	profileOverride string
	// logLevel sets the minimum logging level.
	logLevel string
	// debug shortens cycle and alarm timings for bench testing.
	debug bool

	// rootCmd represents the base command running the control engine.
	rootCmd = &cobra.Command{
		Use:   "gm-controller",
		Short: "Run the vapor recovery control engine.",
		Long: `Starts the control engine for a Green Machine vapor recovery unit.

The engine drives the relay board through the configured broker, runs
processing cycles, watches motor current and pressure telemetry, and
enforces the alarm rules of the configured equipment profile, including
the regulatory 72-hour automatic shutdown.

Runs until SIGTERM/SIGINT, parking the machine at rest on the way out.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			return controller.Run(ctx, &controller.Options{
				ConfigPath: configPath,
				Profile:    profileOverride,
				Debug:      debug,
			})
		},
	}
)

// Execute runs the gm-controller CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&profileOverride, "profile", "p", "", "equipment profile override (CS2, CS8, CS9, CS12)")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "minimum logging level (debug, info, warn, error)")

	// Hidden debug flag shortening timings for bench testing.
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "shorten cycle and alarm timings")

	err := rootCmd.Flags().MarkHidden("debug")
	if err != nil {
		panic(err)
	}
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vst-controls/green-machine/internal/config"
	"github.com/vst-controls/green-machine/internal/link"
	"github.com/vst-controls/green-machine/internal/service/ctl"
	"github.com/vst-controls/green-machine/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// watchAfter keeps gm-ctl attached after sending the command.
	watchAfter bool

	// rootCmd represents the base command for the operator CLI.
	rootCmd = &cobra.Command{
		Use:   "gm-ctl",
		Short: "Operate a running control engine over the broker.",
		Long: `Publishes operator commands to a running gm-controller and can stay
attached to print live telemetry and alarm events.

Commands are fire-and-forget: the controller logs refusals (for example
a mode change while a cycle is running) on its own side.`,
	}
)

// send publishes one operator command, optionally staying attached.
func send(cmd link.Command) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return ctl.Run(ctx, &ctl.Options{
		ConfigPath: configPath,
		Command:    cmd,
		Watch:      watchAfter,
	})
}

// Execute runs the gm-ctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		BoolVarP(&watchAfter, "watch", "w", false, "stay attached and print telemetry")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run-cycle [sequence]",
			Short: "Start the standard run cycle or a named test sequence.",
			Long: `Starts a processing sequence. Without an argument the standard run
cycle is started; otherwise the named catalog sequence is used
(functionality-test, leak-test, canister-clean, test-purge, test-run,
efficiency-fill, efficiency-purge).`,
			Args: cobra.MaximumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				var sequence string
				if len(args) > 0 {
					sequence = args[0]
				}

				return send(link.Command{Action: link.ActionRunCycle, Sequence: sequence})
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the running cycle and rest the machine.",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return send(link.Command{Action: link.ActionStop})
			},
		},
		&cobra.Command{
			Use:   "mode <mode>",
			Short: "Drive the machine into a mode by hand.",
			Long: `Drives the machine into the named mode (rest, run, purge, burp,
bleed, leak). Refused by the controller while a cycle is running.`,
			Args: cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return send(link.Command{Action: link.ActionMode, Mode: args[0]})
			},
		},
		&cobra.Command{
			Use:   "pause",
			Short: "Pause the running cycle, keeping its position.",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return send(link.Command{Action: link.ActionPause})
			},
		},
		&cobra.Command{
			Use:   "resume",
			Short: "Resume a paused cycle from where it stopped.",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return send(link.Command{Action: link.ActionResume})
			},
		},
		&cobra.Command{
			Use:   "calibrate",
			Short: "Re-zero the board's pressure transducer.",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return send(link.Command{Action: link.ActionCalibrate})
			},
		},
		&cobra.Command{
			Use:   "profile <profile>",
			Short: "Switch the equipment profile (CS2, CS8, CS9, CS12).",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return send(link.Command{Action: link.ActionProfile, Profile: args[0]})
			},
		},
		&cobra.Command{
			Use:   "clear-alarm <alarm>",
			Short: "Clear an alarm on a technician's authority.",
			Long: `Clears the named alarm, resetting the counters feeding it. Clearing
72_hour_shutdown releases the enforced shutdown and restores dispensing.`,
			Args: cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return send(link.Command{Action: link.ActionClearAlarm, Alarm: args[0]})
			},
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Print live telemetry and alarm events.",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				watchAfter = true

				return send(link.Command{})
			},
		},
	)
}

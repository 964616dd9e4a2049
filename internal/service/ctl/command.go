package ctl

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vst-controls/green-machine/internal/config"
	"github.com/vst-controls/green-machine/internal/link"
	"github.com/vst-controls/green-machine/internal/logger"
)

// Options controls one gm-ctl invocation.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Command is the operator command to publish. An empty action skips
	// publishing (watch-only invocations).
	Command link.Command
	// Watch keeps the process attached, printing telemetry and alarm
	// events until interrupted.
	Watch bool
}

// ErrNoBroker indicates the configuration has no broker to talk to.
var ErrNoBroker = errors.New("no broker configured")

// Run publishes the operator command and optionally stays attached to
// print telemetry.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "gm-ctl")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if cfg.BrokerURL == "" {
		return ErrNoBroker
	}

	l, err := link.Dial(ctx, link.Config{
		BrokerURL:   cfg.BrokerURL,
		TopicPrefix: cfg.TopicPrefix,
		ClientID:    "gm-ctl-" + uuid.NewString()[:8],
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer l.Close()

	if opts.Command.Action != "" {
		if err := l.SendCommand(ctx, opts.Command); err != nil {
			return fmt.Errorf("send %s: %w", opts.Command.Action, err)
		}

		logger.InfoKV(ctx, "command sent", "action", opts.Command.Action)
	}

	if opts.Watch {
		return watch(ctx, l)
	}

	return nil
}

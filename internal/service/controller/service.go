package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vst-controls/green-machine/internal/actuator"
	"github.com/vst-controls/green-machine/internal/alarm"
	"github.com/vst-controls/green-machine/internal/config"
	"github.com/vst-controls/green-machine/internal/cycle"
	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/fault"
	"github.com/vst-controls/green-machine/internal/link"
	"github.com/vst-controls/green-machine/internal/logger"
	"github.com/vst-controls/green-machine/internal/metrics"
	"github.com/vst-controls/green-machine/internal/modestore"
	"github.com/vst-controls/green-machine/internal/profile"
	"github.com/vst-controls/green-machine/internal/relay"
	"github.com/vst-controls/green-machine/internal/repository/settings"
	"github.com/vst-controls/green-machine/internal/sensors"
)

// stopBudget bounds the cleanup work on shutdown: the machine is parked
// at rest and the stores closed within it, even mid-cycle.
const stopBudget = 2 * time.Second

// Service owns every running part of the controller.
type Service struct {
	cfg   *config.Config
	times cycle.Times

	store    settings.Store
	modes    *modestore.Store
	profiles *profile.Store
	link     *link.Link

	ctrl    *relay.Controller
	applier *sequencedRelay

	pressure *sensors.Cached
	current  *sensors.Cached
	overfill *sensors.Flag

	purge    *cycle.PurgeSupervisor
	seq      *cycle.Sequencer
	states   *cycle.StateManager
	detector *fault.Detector
	alarms   *alarm.Manager
}

// newService wires the engine from configuration. Everything downstream
// of the settings store degrades rather than fails: a dead database falls
// back to memory, a missing broker falls back to an in-memory relay port.
func newService(ctx context.Context, cfg *config.Config) (*Service, error) {
	s := &Service{
		cfg:      cfg,
		times:    cycle.StandardTimes(cfg.Debug),
		pressure: &sensors.Cached{},
		current:  &sensors.Cached{},
		overfill: &sensors.Flag{},
	}

	store, err := settings.OpenBadger(cfg.DataDir)
	if err != nil {
		// The digital storage alarm will pick the failure up through its
		// canary once the set is armed; in the meantime the controller
		// must keep protecting the site.
		logger.ErrorKV(ctx, "settings database unavailable, running from memory",
			"dir", cfg.DataDir, "error", err)

		s.store = settings.NewMemoryStore()
	} else {
		s.store = store
	}

	s.modes, err = modestore.Open(ctx, cfg.ModeStorePath, s.store)
	if err != nil {
		s.closeStores(ctx)
		return nil, fmt.Errorf("open mode store: %w", err)
	}

	s.profiles, err = profile.NewStore(ctx, s.store, cfg.Profile)
	if err != nil {
		s.closeStores(ctx)
		return nil, fmt.Errorf("load equipment profile: %w", err)
	}

	var port actuator.Port

	if cfg.BrokerURL != "" {
		s.link, err = link.Dial(ctx, link.Config{
			BrokerURL:   cfg.BrokerURL,
			TopicPrefix: cfg.TopicPrefix,
			ClientID:    "gm-controller",
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			s.closeStores(ctx)
			return nil, fmt.Errorf("dial board link: %w", err)
		}

		port = link.NewPort(s.link)

		if err := s.link.WireSensors(s.pressure, s.current, s.overfill); err != nil {
			s.close(ctx)
			return nil, fmt.Errorf("subscribe telemetry: %w", err)
		}
	} else {
		logger.Warn(ctx, "no broker configured, driving an in-memory relay port")

		port = actuator.NewMemoryPort()
	}

	s.ctrl = relay.NewController(port, s.modes, s.profiles)
	s.purge = cycle.NewPurgeSupervisor(s.store, s.current)
	s.applier = &sequencedRelay{Controller: s.ctrl, purge: s.purge, link: s.link}
	s.seq = cycle.NewSequencer(s.applier)
	s.states = cycle.NewStateManager(s.store, s.seq)

	raiser := &lateAlarms{}
	governor := &cycleGovernor{states: s.states, seq: s.seq}
	s.detector = fault.NewDetector(s.current, governor, s.ctrl, raiser, s.profiles, cfg.HighCurrentThreshold)

	var notifier alarm.Notifier
	if s.link != nil {
		notifier = &eventPublisher{link: s.link}
	}

	s.alarms = alarm.NewManager(alarm.Deps{
		Store:    s.store,
		Pressure: s.pressure,
		Overfill: s.overfill,
		Strikes:  s.detector,
	}, s.applier, s.seq, s.profiles, notifier, s.detector, cfg.ShutdownDelay)
	raiser.alarms = s.alarms

	s.profiles.OnChange(s.onProfileChange)

	return s, nil
}

// onProfileChange re-arms the alarm set, reconciles the interlock under
// the new permission rules and flips motor fault monitoring.
func (s *Service) onProfileChange(ctx context.Context, previous, active gm.Profile) {
	logger.InfoKV(ctx, "equipment profile changed", "previous", previous, "active", active)

	if err := s.alarms.ArmProfile(ctx, active); err != nil {
		logger.ErrorKV(ctx, "could not re-arm alarms for profile", "profile", active, "error", err)
	}

	s.reconcileInterlock(ctx)

	if active == gm.ProfileCS9 {
		s.detector.Start(ctx)
	} else {
		s.detector.Stop()
	}
}

func (s *Service) reconcileInterlock(ctx context.Context) {
	latched, err := s.alarms.InShutdown(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "cannot read shutdown latch", "error", err)
		return
	}

	if err := s.ctrl.ReconcileInterlock(ctx, s.alarms.ActiveAlarms(), latched); err != nil {
		logger.ErrorKV(ctx, "interlock reconciliation failed", "error", err)
	}
}

// run restores persisted state, subscribes the operator channel and
// drives the alarm engine until ctx is done.
func (s *Service) run(ctx context.Context) error {
	active := s.profiles.Active(ctx)

	if err := s.alarms.ArmProfile(ctx, active); err != nil {
		return fmt.Errorf("arm alarms: %w", err)
	}

	// Re-drive the actuators into the persisted mode before anything
	// else: a restart must never leave the relays out of step with the
	// mode store.
	if err := s.ctrl.Refresh(ctx); err != nil {
		logger.WarnKV(ctx, "relay refresh failed", "error", err)
	}

	s.reconcileInterlock(ctx)

	if active == gm.ProfileCS9 {
		s.detector.Start(ctx)
	}

	if err := s.resumeInterrupted(ctx); err != nil {
		logger.ErrorKV(ctx, "could not resume interrupted cycle", "error", err)
	}

	if s.link != nil {
		if err := s.link.SubscribeCommands(ctx, s.handleCommand); err != nil {
			return fmt.Errorf("subscribe operator commands: %w", err)
		}
	}

	if s.cfg.MetricsAddress != "" {
		go func() {
			if err := metrics.Serve(ctx, s.cfg.MetricsAddress); err != nil {
				logger.ErrorKV(ctx, "metrics listener failed", "error", err)
			}
		}()
	}

	logger.InfoKV(ctx, "controller running",
		"profile", active, "debug", s.cfg.Debug, "shutdown_delay", s.cfg.ShutdownDelay)

	s.alarms.Run(ctx)

	return nil
}

// resumeInterrupted picks a paused cycle back up after a restart, unless
// the site is in the enforced shutdown.
func (s *Service) resumeInterrupted(ctx context.Context) error {
	paused, err := s.states.Paused(ctx)
	if err != nil || !paused {
		return err
	}

	if latched, err := s.alarms.InShutdown(ctx); err != nil || latched {
		return err
	}

	err = s.states.Resume(ctx)
	if errors.Is(err, cycle.ErrNoSavedState) {
		return nil
	}

	return err
}

// close stops the workers and parks the machine at rest within the stop
// budget. The run context is already canceled by the time it is called.
func (s *Service) close(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(context.Background(), stopBudget)
	defer cancel()

	if s.detector != nil {
		s.detector.Stop()
	}

	if s.purge != nil {
		s.purge.Stop()
	}

	if s.seq != nil {
		if err := s.seq.CancelAndWait(stopCtx); err != nil {
			logger.WarnKV(ctx, "could not stop cycle cleanly", "error", err)
		}
	}

	if s.applier != nil {
		if err := s.applier.ApplyMode(stopCtx, gm.ModeRest); err != nil {
			logger.WarnKV(ctx, "could not park machine at rest", "error", err)
		}
	}

	if s.link != nil {
		s.link.Close()
	}

	s.closeStores(ctx)

	logger.Info(ctx, "controller stopped")
}

func (s *Service) closeStores(ctx context.Context) {
	if s.modes != nil {
		if err := s.modes.Close(); err != nil {
			logger.WarnKV(ctx, "mode store close failed", "error", err)
		}

		s.modes = nil
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.WarnKV(ctx, "settings store close failed", "error", err)
		}

		s.store = nil
	}
}

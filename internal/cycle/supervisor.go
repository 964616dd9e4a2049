package cycle

import (
	"context"
	"sync"
	"time"

	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/logger"
	"github.com/vst-controls/green-machine/internal/repository/settings"
	"github.com/vst-controls/green-machine/internal/sensors"
)

const (
	// purgeCheckDelay is how far into a purge the motor current is sampled.
	// The pump needs a moment to load up before the reading means anything.
	purgeCheckDelay = 35 * time.Second

	// minPurgeCurrent is the motor current below which the pump is not
	// actually pulling during a purge.
	minPurgeCurrent = 2.0

	// keyPumpFailureCount accumulates low-current purges; the vacuum pump
	// alarm condition trips on it.
	keyPumpFailureCount = "vac_pump_failure_count"
)

// PurgeSupervisor watches mode changes and samples the motor current
// partway into every purge. A pump that is not drawing current during a
// purge counts toward the vacuum pump alarm.
type PurgeSupervisor struct {
	repo    settings.Store
	current sensors.Source

	mu    sync.Mutex
	timer *time.Timer
}

// NewPurgeSupervisor returns a supervisor reading the motor current source.
func NewPurgeSupervisor(repo settings.Store, current sensors.Source) *PurgeSupervisor {
	return &PurgeSupervisor{repo: repo, current: current}
}

// ModeChanged arms the current check when a purge begins and disarms it
// when the purge ends early.
func (p *PurgeSupervisor) ModeChanged(ctx context.Context, mode gm.Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}

	if mode != gm.ModePurge {
		return
	}

	p.timer = time.AfterFunc(purgeCheckDelay, func() {
		p.checkCurrent(ctx)
	})
}

// Stop disarms any pending check.
func (p *PurgeSupervisor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// checkCurrent records a pump failure when the purge current is too low.
func (p *PurgeSupervisor) checkCurrent(ctx context.Context) {
	reading, ok := p.current.Latest()
	if !ok {
		logger.Warn(ctx, "no current sample available for purge check")
		return
	}

	if reading.Value >= minPurgeCurrent {
		return
	}

	count, err := settings.GetInt(ctx, p.repo, keyPumpFailureCount, 0)
	if err != nil {
		logger.ErrorKV(ctx, "failed to read pump failure count", "error", err)
		return
	}

	count++

	if err := settings.SetInt(ctx, p.repo, keyPumpFailureCount, count); err != nil {
		logger.ErrorKV(ctx, "failed to record pump failure", "error", err)
		return
	}

	logger.WarnKV(ctx, "low current during purge",
		"current", reading.Value, "failure_count", count)
}

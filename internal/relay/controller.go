package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vst-controls/green-machine/internal/actuator"
	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/logger"
	"github.com/vst-controls/green-machine/internal/metrics"
)

const (
	// writeAttempts is how many times a relay write is tried before the
	// bus is reset and the output is given up on.
	writeAttempts = 3
	// defaultRetryBackoff separates consecutive attempts on one output.
	defaultRetryBackoff = 50 * time.Millisecond
)

// ErrNotPermitted is returned when an alarm asks to control the shutdown
// interlock without permission under the active profile.
var ErrNotPermitted = errors.New("interlock control not permitted")

// ModeRecorder persists the applied mode so every process sees it.
type ModeRecorder interface {
	Get(ctx context.Context) gm.Mode
	Set(ctx context.Context, mode gm.Mode) error
}

// ProfileSource reports the active equipment profile.
type ProfileSource interface {
	Active(ctx context.Context) gm.Profile
}

// Controller owns the relay bus. It translates modes into actuator writes,
// keeps the shutdown interlock independent of mode transitions, and
// enforces which alarms may touch the interlock.
type Controller struct {
	// mu serializes all bus access.
	mu      sync.Mutex
	port    actuator.Port
	modes   ModeRecorder
	profile ProfileSource

	retryBackoff time.Duration

	degraded      bool
	interlockOn   bool
	interlockInit bool
}

// NewController returns a controller driving the given port.
func NewController(port actuator.Port, modes ModeRecorder, profile ProfileSource) *Controller {
	return &Controller{
		port:         port,
		modes:        modes,
		profile:      profile,
		retryBackoff: defaultRetryBackoff,
	}
}

// modeOutputs is the fixed order in which mode actuators are written.
// The motor goes last on energize paths so valves settle first.
var modeOutputs = []actuator.ID{actuator.Valve1, actuator.Valve2, actuator.Valve5, actuator.Motor}

// ApplyMode drives the actuators into the configuration for mode and
// records the mode. Reapplying the current mode is a no-op.
//
// Individual output failures are retried and then absorbed: the controller
// marks itself degraded and keeps going, because a half-applied safe state
// beats an abandoned transition. Only context cancellation aborts.
func (c *Controller) ApplyMode(ctx context.Context, mode gm.Mode) error {
	if !mode.Valid() {
		return gm.ErrUnknownMode
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if current := c.modes.Get(ctx); current == mode {
		logger.DebugKV(ctx, "mode already applied", "mode", mode)
		return nil
	}

	if err := c.applyLocked(ctx, mode); err != nil {
		return err
	}

	if err := c.modes.Set(ctx, mode); err != nil {
		return err
	}

	metrics.SetMode(mode)
	logger.InfoKV(ctx, "mode applied", "mode", mode, "actuators", mode.Actuators().String())

	return nil
}

// Refresh re-drives the actuators for the currently recorded mode,
// used after startup and after a bus reset.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	mode := c.modes.Get(ctx)
	if err := c.applyLocked(ctx, mode); err != nil {
		return err
	}

	metrics.SetMode(mode)
	logger.InfoKV(ctx, "mode refreshed", "mode", mode)

	return nil
}

func (c *Controller) applyLocked(ctx context.Context, mode gm.Mode) error {
	want := mode.Actuators()
	states := map[actuator.ID]bool{
		actuator.Valve1: want.Valve1,
		actuator.Valve2: want.Valve2,
		actuator.Valve5: want.Valve5,
		actuator.Motor:  want.Motor,
	}

	for _, id := range modeOutputs {
		if err := c.writeWithRetry(ctx, id, states[id]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			c.degraded = true

			logger.ErrorKV(ctx, "output abandoned after retries and bus reset",
				"output", id, "want_on", states[id], "error", err)
		}
	}

	return nil
}

// SetShutdownInterlock switches the interlock on behalf of an alarm,
// subject to the profile's permission matrix. State changes are logged;
// repeated writes of the held state are silent.
func (c *Controller) SetShutdownInterlock(ctx context.Context, on bool, requestedBy gm.AlarmName) error {
	if !AllowsInterlockControl(requestedBy, c.profile.Active(ctx)) {
		logger.WarnKV(ctx, "interlock request denied",
			"alarm", requestedBy, "profile", c.profile.Active(ctx), "requested_on", on)

		return ErrNotPermitted
	}

	return c.setInterlock(ctx, on, string(requestedBy))
}

// ForceShutdownInterlock switches the interlock on the system's own
// authority, bypassing the permission matrix. Used by the automatic
// shutdown and by startup reconciliation.
func (c *Controller) ForceShutdownInterlock(ctx context.Context, on bool) error {
	return c.setInterlock(ctx, on, "system")
}

func (c *Controller) setInterlock(ctx context.Context, on bool, requestedBy string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.interlockInit && c.interlockOn == on {
		return nil
	}

	if err := c.writeWithRetry(ctx, actuator.ShutdownInterlock, on); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.degraded = true

		logger.ErrorKV(ctx, "interlock write abandoned", "want_on", on, "error", err)

		return err
	}

	c.interlockOn = on
	c.interlockInit = true

	metrics.SetInterlock(on)
	logger.InfoKV(ctx, "shutdown interlock switched", "on", on, "requested_by", requestedBy)

	return nil
}

// InterlockEnabled reports the last successfully written interlock state.
func (c *Controller) InterlockEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.interlockOn
}

// Degraded reports whether any output was abandoned since startup.
func (c *Controller) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.degraded
}

// ReconcileInterlock recomputes the interlock after a profile change or
// startup restore: the interlock goes off while the automatic shutdown is
// latched or any active alarm holds interlock permission under the new
// profile, and back on otherwise.
func (c *Controller) ReconcileInterlock(ctx context.Context, active []gm.AlarmName, systemShutdown bool) error {
	off := systemShutdown

	if !off {
		profile := c.profile.Active(ctx)
		for _, name := range active {
			if AllowsInterlockControl(name, profile) {
				off = true
				break
			}
		}
	}

	return c.setInterlock(ctx, !off, "reconcile")
}

// writeWithRetry tries the output up to writeAttempts times with a short
// backoff, verifying by read-back when the port supports it. On exhaustion
// it resets the bus (when supported) and returns the last error.
func (c *Controller) writeWithRetry(ctx context.Context, id actuator.ID, on bool) error {
	var lastErr error

	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, c.retryBackoff); err != nil {
				return err
			}
		}

		lastErr = c.port.Write(ctx, id, on)
		if lastErr == nil {
			lastErr = c.verify(ctx, id, on)
		}

		if lastErr == nil {
			return nil
		}

		metrics.ActuatorWriteFailure(string(id))
		logger.WarnKV(ctx, "relay write failed",
			"output", id, "want_on", on, "attempt", attempt, "error", lastErr)
	}

	if resetter, ok := c.port.(actuator.Resetter); ok {
		if err := resetter.ResetBus(ctx); err != nil {
			logger.ErrorKV(ctx, "bus reset failed", "error", err)
		} else {
			logger.WarnKV(ctx, "relay bus reset", "output", id)
		}
	}

	return lastErr
}

// verify reads the output back when the port can report state.
func (c *Controller) verify(ctx context.Context, id actuator.ID, want bool) error {
	reader, ok := c.port.(actuator.Reader)
	if !ok {
		return nil
	}

	got, err := reader.Read(ctx, id)
	if err != nil {
		return err
	}

	if got != want {
		return actuator.ErrWrite
	}

	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package alarm

import (
	"context"
	"math"
	"time"

	"github.com/vst-controls/green-machine/internal/repository/settings"
	"github.com/vst-controls/green-machine/internal/sensors"
)

// Alarm thresholds. Pressures are inches of water column.
const (
	// sensorFailurePressure is an implausibly low reading that can only
	// mean a disconnected or failed sensor.
	sensorFailurePressure = -40.0

	// overPressureLimit is the sustained high-pressure threshold.
	overPressureLimit = 2.0

	// underPressureLimit is the sustained low-pressure threshold.
	underPressureLimit = -6.0

	// zeroPressureBand is the band around zero that suggests the sensor
	// line is open to atmosphere.
	zeroPressureBand = 0.15

	// variablePressureBand is how little the pressure must move to count
	// as "not varying".
	variablePressureBand = 0.20

	// pumpFailureLimit is the purge-failure count that trips the pump alarm.
	pumpFailureLimit = 10

	// overfillLatch keeps the overfill alarm asserted after the contact
	// drops, forcing a deliberate acknowledgement window.
	overfillLatch = 2 * time.Hour
)

// Condition evaluates one alarm's raw trigger. Errors are treated by the
// engine as the condition being true: a condition that cannot be evaluated
// must not silently hold an alarm off.
type Condition interface {
	Check(ctx context.Context) (bool, error)
}

// ConditionFunc adapts a function to the Condition interface.
type ConditionFunc func(ctx context.Context) (bool, error)

// Check implements Condition.
func (f ConditionFunc) Check(ctx context.Context) (bool, error) {
	return f(ctx)
}

// PressureSensorFailure detects an implausibly low pressure reading.
func PressureSensorFailure(pressure sensors.Source) Condition {
	return ConditionFunc(func(context.Context) (bool, error) {
		reading, ok := pressure.Latest()
		if !ok {
			return false, nil
		}

		return reading.Value < sensorFailurePressure, nil
	})
}

// OverPressure detects sustained high tank pressure.
func OverPressure(pressure sensors.Source) Condition {
	return ConditionFunc(func(context.Context) (bool, error) {
		reading, ok := pressure.Latest()
		if !ok {
			return false, nil
		}

		return reading.Value >= overPressureLimit, nil
	})
}

// UnderPressure detects sustained low tank pressure.
func UnderPressure(pressure sensors.Source) Condition {
	return ConditionFunc(func(context.Context) (bool, error) {
		reading, ok := pressure.Latest()
		if !ok {
			return false, nil
		}

		return reading.Value <= underPressureLimit, nil
	})
}

// ZeroPressure detects pressure sitting in the dead band around zero.
func ZeroPressure(pressure sensors.Source) Condition {
	return ConditionFunc(func(context.Context) (bool, error) {
		reading, ok := pressure.Latest()
		if !ok {
			return false, nil
		}

		return math.Abs(reading.Value) <= zeroPressureBand, nil
	})
}

// keyVariablePressurePoint persists the reference point for the
// variable-pressure check.
const keyVariablePressurePoint = "variable_pressure_point"

// VariablePressure detects pressure that has stopped moving. The reference
// point chases the reading: whenever the pressure escapes the band the
// point is re-anchored, so only a genuinely flat signal stays true long
// enough to confirm.
func VariablePressure(repo settings.Store, pressure sensors.Source) Condition {
	return ConditionFunc(func(ctx context.Context) (bool, error) {
		reading, ok := pressure.Latest()
		if !ok {
			return false, nil
		}

		point, err := settings.GetFloat(ctx, repo, keyVariablePressurePoint, math.NaN())
		if err != nil {
			return false, err
		}

		if math.IsNaN(point) || math.Abs(reading.Value-point) > variablePressureBand {
			if err := settings.SetFloat(ctx, repo, keyVariablePressurePoint, reading.Value); err != nil {
				return false, err
			}

			return false, nil
		}

		return true, nil
	})
}

// VacuumPump trips once enough purge failures have accumulated.
func VacuumPump(repo settings.Store) Condition {
	return ConditionFunc(func(ctx context.Context) (bool, error) {
		count, err := settings.GetInt(ctx, repo, "vac_pump_failure_count", 0)
		if err != nil {
			return false, err
		}

		return count >= pumpFailureLimit, nil
	})
}

// StrikeSource reports the motor-fault strike count.
type StrikeSource interface {
	Strikes() int
}

// ProcessorFault trips when the fault detector has exhausted its strikes.
// Only processor-fault sites arm it.
func ProcessorFault(strikes StrikeSource) Condition {
	return ConditionFunc(func(context.Context) (bool, error) {
		return strikes.Strikes() >= 3, nil
	})
}

// keyOverfillLastSeen persists when the overfill contact was last asserted.
const keyOverfillLastSeen = "overfill_last_seen"

// Overfill follows the overfill contact with a two-hour latch after it
// drops.
func Overfill(repo settings.Store, contact *sensors.Flag, now func() time.Time) Condition {
	return ConditionFunc(func(ctx context.Context) (bool, error) {
		set, _ := contact.Set()
		if set {
			if err := settings.SetTime(ctx, repo, keyOverfillLastSeen, now()); err != nil {
				return false, err
			}

			return true, nil
		}

		lastSeen, found, err := settings.GetTime(ctx, repo, keyOverfillLastSeen)
		if err != nil {
			return false, err
		}

		if !found {
			return false, nil
		}

		return now().Sub(lastSeen) < overfillLatch, nil
	})
}

// canaryKey is written and read back to prove the settings store works.
const canaryKey = "storage_health_canary"

// DigitalStorage trips when the settings store cannot complete a
// write-and-read-back round trip.
func DigitalStorage(repo settings.Store, now func() time.Time) Condition {
	return ConditionFunc(func(ctx context.Context) (bool, error) {
		stamp := now().Format(time.RFC3339Nano)

		if err := repo.Set(ctx, canaryKey, stamp); err != nil {
			return true, nil //nolint:nilerr // a failing store IS the alarm condition
		}

		got, found, err := repo.Get(ctx, canaryKey)
		if err != nil || !found || got != stamp {
			return true, nil //nolint:nilerr // a failing store IS the alarm condition
		}

		return false, nil
	})
}

// ShutdownLatched mirrors the persisted automatic-shutdown latch; the
// 72-hour alarm is active exactly while the latch is set.
func ShutdownLatched(repo *Repository) Condition {
	return ConditionFunc(func(ctx context.Context) (bool, error) {
		return repo.InShutdown(ctx)
	})
}

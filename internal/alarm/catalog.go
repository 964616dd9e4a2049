package alarm

import (
	"time"

	"github.com/vst-controls/green-machine/internal/domain/gm"
)

// confirmDurations is how long each condition must hold continuously
// before its alarm activates. Alarms absent from the table activate
// immediately.
var confirmDurations = map[gm.AlarmName]time.Duration{
	gm.AlarmPressureSensor:   10 * time.Second,
	gm.AlarmOverPressure:     30 * time.Minute,
	gm.AlarmUnderPressure:    30 * time.Minute,
	gm.AlarmVariablePressure: time.Hour,
	gm.AlarmZeroPressure:     time.Hour,
}

// ConfirmDuration returns the confirmation window for the alarm.
func ConfirmDuration(name gm.AlarmName) time.Duration {
	return confirmDurations[name]
}

// basicAlarms are armed on every profile.
var basicAlarms = []gm.AlarmName{
	gm.AlarmPressureSensor,
	gm.AlarmVacPump,
	gm.AlarmOverfill,
	gm.AlarmDigitalStorage,
}

// pressureBandAlarms need the full pressure-monitoring package.
var pressureBandAlarms = []gm.AlarmName{
	gm.AlarmOverPressure,
	gm.AlarmUnderPressure,
	gm.AlarmVariablePressure,
	gm.AlarmZeroPressure,
}

// ProfileAlarms returns the alarms armed under the profile.
func ProfileAlarms(p gm.Profile) []gm.AlarmName {
	names := make([]gm.AlarmName, 0, 10)
	names = append(names, basicAlarms...)

	switch p {
	case gm.ProfileCS2:
		// Basic set only, no automatic shutdown.
		return names
	case gm.ProfileCS8:
		names = append(names, pressureBandAlarms...)
	case gm.ProfileCS9:
		names = append(names, gm.AlarmGMFault)
	case gm.ProfileCS12:
		// Basic set plus the shutdown timer.
	}

	return append(names, gm.AlarmSeventyTwoHour)
}

// shutdownTriggering lists, per profile, the alarms whose continuous
// activity counts toward the automatic shutdown.
var shutdownTriggering = map[gm.Profile][]gm.AlarmName{
	gm.ProfileCS8: {
		gm.AlarmPressureSensor,
		gm.AlarmVacPump,
		gm.AlarmOverfill,
		gm.AlarmDigitalStorage,
		gm.AlarmOverPressure,
		gm.AlarmUnderPressure,
		gm.AlarmVariablePressure,
		gm.AlarmZeroPressure,
		gm.AlarmGMFault,
	},
	gm.ProfileCS9: {
		gm.AlarmVacPump,
		gm.AlarmPressureSensor,
	},
	gm.ProfileCS12: {
		gm.AlarmPressureSensor,
	},
}

// ShutdownTriggering returns the alarms that feed the shutdown countdown
// under the profile. CS2 has no automatic shutdown.
func ShutdownTriggering(p gm.Profile) []gm.AlarmName {
	return shutdownTriggering[p]
}

// warningMarks are the remaining-time points at which shutdown warnings
// are issued, largest first.
var warningMarks = []time.Duration{
	48 * time.Hour,
	36 * time.Hour,
	25 * time.Hour,
	time.Hour,
}

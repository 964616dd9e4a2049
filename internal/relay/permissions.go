package relay

import "github.com/vst-controls/green-machine/internal/domain/gm"

// cs9InterlockAlarms are the alarms that may drive the interlock on
// processor-fault sites in addition to the automatic shutdown.
var cs9InterlockAlarms = map[gm.AlarmName]struct{}{
	gm.AlarmPressureSensor: {},
	gm.AlarmVacPump:        {},
	gm.AlarmGMFault:        {},
}

// AllowsInterlockControl reports whether the named alarm may switch the
// shutdown interlock under the given profile. The automatic 72-hour
// shutdown may always disable dispensing; CS9 sites additionally let the
// sensor, pump and processor-fault alarms do so.
func AllowsInterlockControl(name gm.AlarmName, profile gm.Profile) bool {
	if name == gm.AlarmSeventyTwoHour {
		return true
	}

	if profile != gm.ProfileCS9 {
		return false
	}

	_, ok := cs9InterlockAlarms[name]

	return ok
}

package gm

// AlarmName identifies an alarm condition monitored by the alarm engine.
type AlarmName string

// Alarm names. These double as keys in the settings store, so they must
// stay stable across releases.
const (
	// AlarmPressureSensor fires when the pressure reading is implausibly low,
	// indicating a disconnected or failed sensor.
	AlarmPressureSensor AlarmName = "pressure_sensor"
	// AlarmVacPump fires when the vacuum pump has accumulated too many
	// purge-current failures or tripped the fault detector.
	AlarmVacPump AlarmName = "vac_pump"
	// AlarmOverfill fires while the overfill input is latched.
	AlarmOverfill AlarmName = "overfill"
	// AlarmDigitalStorage fires when the persistent store is unhealthy.
	AlarmDigitalStorage AlarmName = "digital_storage"
	// AlarmOverPressure fires on sustained high tank pressure.
	AlarmOverPressure AlarmName = "over_pressure"
	// AlarmUnderPressure fires on sustained low tank pressure.
	AlarmUnderPressure AlarmName = "under_pressure"
	// AlarmVariablePressure fires when the pressure stops varying.
	AlarmVariablePressure AlarmName = "variable_pressure"
	// AlarmZeroPressure fires when the pressure sits near zero too long.
	AlarmZeroPressure AlarmName = "zero_pressure"
	// AlarmGMFault fires when the motor-current fault counter maxes out.
	AlarmGMFault AlarmName = "gm_fault"
	// AlarmSeventyTwoHour is the regulatory automatic shutdown timer.
	AlarmSeventyTwoHour AlarmName = "72_hour_shutdown"
)

// String returns the alarm name.
func (n AlarmName) String() string {
	return string(n)
}

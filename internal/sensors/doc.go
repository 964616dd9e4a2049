// Package sensors caches the latest telemetry samples (tank pressure,
// motor current, overfill contact) for the alarm and fault engines, which
// poll rather than subscribe.
package sensors

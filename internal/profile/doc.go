// Package profile tracks the installation's equipment profile. The profile
// decides which alarms are armed and which may drive the shutdown
// interlock; changes are persisted and fanned out to registered hooks.
package profile

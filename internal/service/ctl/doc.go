// Package ctl implements the operator CLI: it publishes commands to the
// controller over the link and can stay attached to print telemetry and
// alarm events.
package ctl

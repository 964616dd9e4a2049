// Package gm holds the core vocabulary of the vapor-recovery controller:
// operating modes with their store and relay-board encodings, actuator
// configurations, equipment profiles, alarm names and cycle sequences.
// Everything here is plain data with no I/O, shared by every other package.
package gm

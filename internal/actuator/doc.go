// Package actuator defines the port through which the controller switches
// the relay-board outputs, plus an in-memory implementation for tests and
// boardless operation.
package actuator

// Package controller wires and runs the full engine: settings store,
// shared mode store, board link, relay controller, cycle sequencer,
// motor fault detector and alarm engine. Operator commands arrive over
// the link and are dispatched here.
package controller

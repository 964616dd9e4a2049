// Package alarm implements the alarm engine. Conditions are evaluated
// once a second and confirmed over per-alarm windows before activating;
// transitions run side effects (cycle stop, interlock changes) and notify
// remote tooling. Continuously active alarms feed per-alarm countdowns to
// the regulatory automatic shutdown, with staged warnings as each deadline
// approaches. All timers and flags persist, so restarts never reset a
// confirmation window or a countdown.
package alarm

// Package cycle runs the processor's timed mode sequences. The sequencer
// executes one sequence at a time with fast cancellation polling, the
// state manager pauses and resumes cycles across restarts, and the purge
// supervisor checks that the pump actually pulls current during purges.
// The sequence catalog mirrors the service procedures: the standard run
// cycle, functionality and leak tests, canister cleaning and the
// efficiency test stages.
package cycle

// Package fault monitors the motor current for sustained overdraw on
// processor-fault sites. Detections are confirmed over time, counted as
// strikes, and handled with escalating severity: brief pause-and-rest for
// the first two, full stop with a latched pump alarm on the third.
package fault

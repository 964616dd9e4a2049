// Package relay owns the relay bus. The controller serializes all writes,
// retries failed outputs with a bus reset as the last resort, keeps mode
// application idempotent, and guards the shutdown interlock behind a
// per-profile permission matrix.
package relay

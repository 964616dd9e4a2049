// Package settings provides the controller's durable key-value store.
// Production uses an embedded Badger database; tests and degraded startup
// use the in-memory implementation. Typed helpers layer ints, floats,
// booleans, timestamps and JSON documents over the string store.
package settings

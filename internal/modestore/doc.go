// Package modestore publishes the processor's current operating mode to
// every process on the machine. The primary backend is a 16-byte shared
// memory-mapped file with atomically accessed words; a durable copy in the
// settings store covers reboots and a corrupted shared file. Reads never
// fail: with no information at all the store reports the safe rest mode.
package modestore

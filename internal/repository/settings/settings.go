package settings

import (
	"context"
	"errors"
)

// Sentinel repository errors.
var (
	// ErrStoreClosed is returned when an operation hits a closed store.
	ErrStoreClosed = errors.New("settings store is closed")
)

// Store is a small durable key-value store for controller state:
// alarm timers, fault counters, cycle bookkeeping.
//
// Get reports found=false for missing keys instead of an error, so callers
// can distinguish "never set" from a storage failure.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

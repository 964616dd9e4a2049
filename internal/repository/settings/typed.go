package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Typed accessors over the string-valued Store. Times are stored as
// RFC 3339 with nanoseconds so comparisons survive the round trip.

// GetInt reads an integer value, returning def when the key is missing.
func GetInt(ctx context.Context, s Store, key string, def int) (int, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil {
		return def, err
	}

	if !found {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("parse %q as int: %w", key, err)
	}

	return v, nil
}

// SetInt writes an integer value.
func SetInt(ctx context.Context, s Store, key string, value int) error {
	return s.Set(ctx, key, strconv.Itoa(value))
}

// GetFloat reads a float value, returning def when the key is missing.
func GetFloat(ctx context.Context, s Store, key string, def float64) (float64, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil {
		return def, err
	}

	if !found {
		return def, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def, fmt.Errorf("parse %q as float: %w", key, err)
	}

	return v, nil
}

// SetFloat writes a float value.
func SetFloat(ctx context.Context, s Store, key string, value float64) error {
	return s.Set(ctx, key, strconv.FormatFloat(value, 'g', -1, 64))
}

// GetBool reads a boolean value, returning def when the key is missing.
func GetBool(ctx context.Context, s Store, key string, def bool) (bool, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil {
		return def, err
	}

	if !found {
		return def, nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("parse %q as bool: %w", key, err)
	}

	return v, nil
}

// SetBool writes a boolean value.
func SetBool(ctx context.Context, s Store, key string, value bool) error {
	return s.Set(ctx, key, strconv.FormatBool(value))
}

// GetTime reads a timestamp. found is false when the key is missing.
func GetTime(ctx context.Context, s Store, key string) (time.Time, bool, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return time.Time{}, false, err
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %q as time: %w", key, err)
	}

	return t, true, nil
}

// SetTime writes a timestamp.
func SetTime(ctx context.Context, s Store, key string, t time.Time) error {
	return s.Set(ctx, key, t.Format(time.RFC3339Nano))
}

// GetJSON reads a JSON-encoded value into out. found is false when missing.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}

	return true, nil
}

// SetJSON writes a JSON-encoded value.
func SetJSON(ctx context.Context, s Store, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	return s.Set(ctx, key, string(data))
}

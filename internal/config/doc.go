// Package config handles loading, saving and validating the YAML settings
// shared by the green-machine binaries. Validation fills in defaults for
// every optional field, so callers always see a complete configuration.
package config

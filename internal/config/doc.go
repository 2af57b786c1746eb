// Package config loads, normalizes, and validates the TOML configuration.
// Secrets absent from the file are resolved from the environment during
// normalization so credentials never have to live on disk.
package config

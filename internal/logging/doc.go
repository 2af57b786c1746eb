// Package logging builds the application's slog loggers. Console output uses a
// compact single-line handler that prefixes records with the emitting
// component; JSON output is available for machine consumption. Attr helpers
// keep call sites terse.
package logging

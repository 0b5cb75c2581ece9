// Package logging constructs slog loggers with docbridge's console and JSON
// handlers and provides standardized attribute helpers and field names.
package logging

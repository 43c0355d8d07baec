// Package log configures the process-wide slog default shared by every
// healthsim component.
package log

import (
	"log/slog"
	"os"
)

// Setup installs the default text logger at the given level. Unknown level
// strings fall back to info. Every record carries the service attribute so
// engine output stays attributable when runs are aggregated.
func Setup(logLevel string) {
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})).With("service", "healthsim"))
}

// WithModule returns the default logger tagged with the component name, the
// attribute every engine package logs under.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}

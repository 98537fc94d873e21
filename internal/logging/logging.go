// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
)

// New returns a text logger on w. Verbose runs log at debug level, others
// only warnings and errors so progress output stays readable.
func New(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup installs a logger from New as the slog default and returns it.
func Setup(w io.Writer, verbose bool) *slog.Logger {
	logger := New(w, verbose)
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

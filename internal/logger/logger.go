// Package logger sets up the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// New creates a structured logger using slog with JSON output.
func New(output io.Writer, level slog.Level) *slog.Logger {
	if output == nil {
		output = os.Stdout
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler)
}

// WithComponent creates a logger with a component attribute, matching the
// component tagging convention used across all of Toppy's subsystems.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// Package logging implements the logger used across the image trust
// verification client.
package logging

import (
	"io"
	"log/slog"
)

// Logger is the logging interface the verification components write to.
// Args are alternating key/value pairs, mirroring slog's behavior.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type slogger struct {
	slg *slog.Logger
}

// NewLogger returns a Logger writing text records to w at the given level.
func NewLogger(w io.Writer, level slog.Leveler) Logger {
	slg := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return &slogger{slg}
}

// SimpleLogger returns a lightweight implementation that wraps the
// slog.Default() logger. Suitable for testing.
func SimpleLogger() Logger {
	return &slogger{slog.Default()}
}

// Debug logs msg and args at 'Debug' severity.
func (l *slogger) Debug(msg string, args ...any) {
	l.slg.Debug(msg, args...)
}

// Info logs msg and args at 'Info' severity.
func (l *slogger) Info(msg string, args ...any) {
	l.slg.Info(msg, args...)
}

// Warn logs msg and args at 'Warn' severity.
func (l *slogger) Warn(msg string, args ...any) {
	l.slg.Warn(msg, args...)
}

// Error logs msg and args at 'Error' severity.
func (l *slogger) Error(msg string, args ...any) {
	l.slg.Error(msg, args...)
}

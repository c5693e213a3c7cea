// Package log is the process-wide structured logger for jobprep.
package log

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	logger atomic.Pointer[slog.Logger]
	level  = new(slog.LevelVar)
	out    atomic.Pointer[io.Writer]
	asJSON atomic.Bool
)

func init() {
	// Warnings only unless -v is passed
	level.Set(slog.LevelWarn)
	var w io.Writer = os.Stderr
	out.Store(&w)
	rebuild()
}

func rebuild() {
	w := *out.Load()
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if asJSON.Load() {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger.Store(slog.New(h))
}

// SetVerbose enables debug logging
func SetVerbose(verbose bool) {
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelWarn)
	}
}

// SetQuiet disables all logging except errors
func SetQuiet(quiet bool) {
	if quiet {
		level.Set(slog.LevelError)
	}
}

// SetLevel sets an explicit level, used by the server which logs requests at info.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// SetJSON switches between the text and JSON handlers.
func SetJSON(enabled bool) {
	asJSON.Store(enabled)
	rebuild()
}

// SetOutput changes the log output destination
func SetOutput(w io.Writer) {
	out.Store(&w)
	rebuild()
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return logger.Load()
}

func Debug(msg string, args ...any) {
	logger.Load().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	logger.Load().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	logger.Load().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	logger.Load().Error(msg, args...)
}

// With returns a logger with the given attributes
func With(args ...any) *slog.Logger {
	return logger.Load().With(args...)
}

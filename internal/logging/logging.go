// Package logging provides structured logging for the vmstats daemon and tools.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports colored text output
// on terminals (via tint), plain text and JSON output, configurable log levels,
// and component-based loggers.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for production
//
//	// Get a component logger
//	log := logging.Component("collector")
//	log.Info("collector started", "metrics", 10)
//
// Component loggers may be created in package variables before Init runs;
// they always write through the handler installed most recently.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Logger is the global logger instance.
var Logger *slog.Logger

var current atomic.Pointer[slog.Handler]

func init() {
	Init(slog.LevelInfo, false)
}

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON. Otherwise text is written,
// colored when stdout is a terminal.
func Init(level slog.Level, jsonFormat bool) {
	InitWithHandler(NewHandler(os.Stdout, level, jsonFormat))
}

// NewHandler builds the handler Init would install for w.
func NewHandler(w io.Writer, level slog.Level, jsonFormat bool) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if jsonFormat {
		return slog.NewJSONHandler(w, opts)
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  opts.AddSource,
			TimeFormat: time.TimeOnly,
		})
	}
	return slog.NewTextHandler(w, opts)
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	current.Store(&handler)
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel converts a level name from configuration.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// With returns a new logger with additional attributes.
// These attributes are included in every log entry from the returned logger.
func With(args ...any) *slog.Logger {
	return slog.New(forwardHandler{}).With(args...)
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("collector")
//	log.Info("started") // Output: time=... level=INFO component=collector msg=started
func Component(name string) *slog.Logger {
	return With("component", name)
}

// forwardHandler resolves the installed handler at log time so loggers built
// during package initialization follow later calls to Init.
type forwardHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (h forwardHandler) resolve() slog.Handler {
	hp := current.Load()
	out := *hp
	for _, op := range h.ops {
		out = op(out)
	}
	return out
}

func (h forwardHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*current.Load()).Enabled(ctx, level)
}

func (h forwardHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h forwardHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h forwardHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h forwardHandler) with(op func(slog.Handler) slog.Handler) forwardHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return forwardHandler{ops: append(ops, op)}
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

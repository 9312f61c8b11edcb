// Package log provides structured diagnostic logging for nutver.
//
// nutver's contract with build systems is strict: the requested version
// value is the only thing written to stdout, and every diagnostic line
// goes to stderr. This package defines a small Logger interface backed
// by stdlib slog so packages can emit diagnostics without touching the
// output stream, with a swappable global default for the CLI to
// configure after flag parsing.
package log

import (
	"log/slog"
	"sync"
)

// Logger is the interface for structured diagnostic logging.
// Method signatures match slog for easy integration.
type Logger interface {
	// Debug logs internal state useful only for troubleshooting,
	// such as the full derived version record.
	Debug(msg string, args ...any)

	// Info logs operational context like which derivation path ran.
	Info(msg string, args ...any)

	// Warn logs recoverable issues, such as a failed git derivation
	// that falls back to the default version.
	Warn(msg string, args ...any)

	// Error logs failures that abort the invocation.
	Error(msg string, args ...any)

	// With returns a Logger that includes the given key-value pairs
	// in all subsequent entries.
	With(args ...any) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// New creates a Logger backed by slog with the given handler.
func New(h slog.Handler) Logger {
	return &slogLogger{l: slog.New(h)}
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

// noopLogger discards all output.
type noopLogger struct{}

// NewNoop returns a logger that discards everything. Useful in tests.
func NewNoop() Logger { return noopLogger{} }

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) With(...any) Logger   { return noopLogger{} }

var (
	defaultLogger Logger = noopLogger{}
	defaultMu     sync.RWMutex
)

// Default returns the global logger configured at startup.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault sets the global logger. Called once from main() after
// verbosity flags are parsed.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

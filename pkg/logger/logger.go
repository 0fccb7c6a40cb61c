package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog with a component attribute so every stage logs under its
// own name.
type Logger struct {
	inner *slog.Logger
}

// Init installs the process-wide handler. Text on stderr by default, JSON
// when RAFT_LOG_JSON=1; level from RAFT_LOG_LEVEL (debug|info|warn|error).
func Init() {
	options := &slog.HandlerOptions{
		Level: levelFromEnv(),
	}

	var handler slog.Handler
	if os.Getenv("RAFT_LOG_JSON") == "1" {
		handler = slog.NewJSONHandler(os.Stderr, options)
	} else {
		handler = slog.NewTextHandler(os.Stderr, options)
	}
	slog.SetDefault(slog.New(handler))
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("RAFT_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func New(component string) *Logger {
	return &Logger{
		inner: slog.Default().With("component", component),
	}
}

func (l *Logger) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }

func (l *Logger) With(args ...any) *Logger {
	return &Logger{inner: l.inner.With(args...)}
}

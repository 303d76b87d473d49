// Package logger configures the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/portyard/fleetsim/internal/config"
)

// Closer flushes buffered log records on shutdown. The Closer returned
// by New is a no-op unless async logging is enabled.
type Closer interface {
	Close() error
}

// New builds a JSON logger per cfg, tags every record with the service
// name and installs the result as the process default.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	log, closer := NewWithWriter(cfg, os.Stdout)
	slog.SetDefault(log)
	return log, closer
}

// NewWithWriter is New with an explicit sink and without touching the
// process default.
func NewWithWriter(cfg config.Logging, w io.Writer) (*slog.Logger, Closer) {
	var (
		handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
		closer  Closer       = nopCloser{}
	)
	if cfg.Async {
		async := newAsyncHandler(handler, asyncQueueSize)
		handler = async
		closer = async
	}
	return slog.New(handler).With("service", cfg.Service), closer
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

package authcore

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Version is reported as the "version" attribute of NewLogger.
var Version = "dev"

// NewLogger builds the structured logger the engine and CLI log through.
//
// It writes JSON (default) or text to stdout (default) or stderr, filters by
// level and attaches service and version attributes to every record.
func NewLogger(cfg LogConfig) *slog.Logger {
	return newLogger(cfg, outputFor(cfg.Output))
}

func newLogger(cfg LogConfig, output io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "authcore"),
		slog.String("version", Version),
	})
	return slog.New(handler)
}

func outputFor(name string) io.Writer {
	switch strings.ToLower(name) {
	case "stderr":
		return os.Stderr
	default:
		return os.Stdout
	}
}

// parseLevel maps debug, warn, error; anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// shortHash keeps log lines correlatable without exposing full identifiers.
func shortHash(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a configured level name to a slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
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

// NewHandler builds a JSON handler for format "json" and a text handler otherwise. Source
// locations are included only at debug level.
func NewHandler(w io.Writer, format, level string) slog.Handler {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetupLogger installs a stdout logger built from the logging configuration as the slog
// default, so package-level slog calls everywhere pick it up.
func SetupLogger(format, level string) *slog.Logger {
	logger := slog.New(NewHandler(os.Stdout, format, level))
	slog.SetDefault(logger)
	logger.Info("logger initialised", "format", format, "level", ParseLevel(level).String())
	return logger
}

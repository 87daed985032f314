package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/turbot/reshard/internal/constants"
)

// LogLevelOff is above every level slog emits, so nothing is logged
const LogLevelOff = slog.Level(100)

func Initialize(version string) {
	logger := ReshardLogger(os.Stderr)
	slog.SetDefault(logger)

	slog.Info("Reshard CLI",
		"app version", version,
		"log level", os.Getenv(constants.EnvLogLevel))
}

// ReshardLogger returns a JSON logger writing to w at the level set by RESHARD_LOG_LEVEL.
// Logging is off unless the level is set.
func ReshardLogger(w io.Writer) *slog.Logger {
	level := getLogLevel()
	if level == LogLevelOff {
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	}

	handlerOptions := &slog.HandlerOptions{
		Level: level,
	}
	return slog.New(slog.NewJSONHandler(w, handlerOptions)).With("source", "cli")
}

func getLogLevel() slog.Leveler {
	levelEnv := os.Getenv(constants.EnvLogLevel)

	switch strings.ToLower(levelEnv) {
	case "trace", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return LogLevelOff
	}
}

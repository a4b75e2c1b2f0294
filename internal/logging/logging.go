// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup configures a text-handler logger writing to w at the given level
// ("debug", "info", "warn", "error"; anything else means info), installs it
// as the slog default, and returns it.
func Setup(w io.Writer, level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// FromEnv configures the default logger from the LOG_LEVEL environment
// variable, writing to stderr.
func FromEnv() *slog.Logger {
	return Setup(os.Stderr, os.Getenv("LOG_LEVEL"))
}

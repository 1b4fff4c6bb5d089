// Package app holds process-level wiring shared by the command layer.
package app

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a *slog.Logger and sets it as the default.
//
// Format "json" produces structured JSON output; anything else produces
// human-readable text with source info. Level is one of debug, info,
// warn, error (case-insensitive), defaulting to info. Output is always
// os.Stderr so the serialized graph can go to stdout-adjacent paths
// untouched.
func NewLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: !strings.EqualFold(format, "json"),
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

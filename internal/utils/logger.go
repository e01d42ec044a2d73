package utils

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// NewLogger returns a slog.Logger configured for the desired verbosity
// and format. JSON output is meant for production; the text path uses
// tint for readable local development logs.
func NewLogger(level string, json bool) *slog.Logger {
	handlerLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		handlerLevel = slog.LevelDebug
	case "warn":
		handlerLevel = slog.LevelWarn
	case "error":
		handlerLevel = slog.LevelError
	}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: handlerLevel})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      handlerLevel,
			TimeFormat: time.TimeOnly,
		})
	}

	return slog.New(handler)
}

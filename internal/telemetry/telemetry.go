// Package telemetry builds the process-wide logger.
package telemetry

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog logger writing to w at the given level.
// Format "console" yields human-readable output; anything else emits JSON.
// An unparsable level falls back to info.
func NewLogger(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Default returns the stderr console logger used when no configuration is
// available yet.
func Default() zerolog.Logger {
	return NewLogger(os.Stderr, "info", "console")
}

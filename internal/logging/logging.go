// Package logging builds the zerolog loggers used across the client.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the log encoding.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New returns a root logger writing to w at the given level. Unknown levels
// fall back to info so a typo in the environment never silences the client.
func New(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if format != FormatJSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Stderr is a shorthand for New(os.Stderr, ...).
func Stderr(level, format string) zerolog.Logger {
	return New(os.Stderr, level, format)
}

// Component derives a child logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New returns a logger tagged with the service name. format "console" gives
// human readable output, anything else JSON.
func New(serviceName, level, format string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(ParseLevel(level)).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

// Setup installs a logger as the global log.Logger.
func Setup(serviceName, level, format string) zerolog.Logger {
	logger := New(serviceName, level, format, os.Stdout)
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	return logger
}

// ParseLevel maps LOG_LEVEL values (DEBUG, INFO, ...) to zerolog levels.
// Unknown values fall back to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

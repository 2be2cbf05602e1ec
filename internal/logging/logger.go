// Package logging builds structured zerolog loggers and panic-recovery
// helpers, grounded on the teacher's internal/shared/monitoring/logger.go.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the logger's level and output format.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text, pretty
	Service string
}

// New builds a zerolog.Logger configured for the given level/format, with a
// timestamp, caller, and "service" field on every event.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	service := cfg.Service
	if service == "" {
		service = "pws"
	}

	return zerolog.New(output).With().Timestamp().Caller().Str("service", service).Logger()
}

// RecoverPanic logs a recovered panic without re-panicking. Use in a
// deferred call at the top of any goroutine PWS starts.
func RecoverPanic(logger zerolog.Logger, goroutine string) {
	if r := recover(); r != nil {
		logger.Error().
			Str("goroutine", goroutine).
			Interface("panic", r).
			Str("stack", string(debug.Stack())).
			Msg("recovered goroutine panic")
	}
}

// Package logging configures zerolog for the harvester.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.DurationFieldUnit = time.Second

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level. Unknown values map to info.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithRun adds the run id and search query to logger.
func WithRun(logger zerolog.Logger, runID, query string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Str("query", query).Logger()
}

// Log Level Guidelines:
//
// Debug: per-request detail
//   - search request sent (first, cursor)
//   - page processed (batch_size, total_fetched)
//   - nodes filtered, batch upserted, migrations
//
// Info: run lifecycle
//   - crawl start and stop (reason, total_fetched, iterations)
//   - repository_count of the first page
//   - metrics server start
//
// Warn: recovered conditions
//   - request failed, backing off (error_class, wait)
//   - rate pause until reset (remaining, reset_at, wait)
//   - budget exhausted, checkpoint not saved
//
// Error: lost work or fatal setup
//   - sink upsert failed (batch dropped)
//   - non-retryable request error
//   - configuration or database setup failures
//
// Context Fields:
//   - component: package emitting the event (crawler, graphql-client, sink, ...)
//   - run_id, query: run identity
//   - iteration, cursor, total_fetched, batch_size
//   - error_class: transport, protocol, empty, invalid
//   - remaining, reset_at, wait
//   - reason: stop reason

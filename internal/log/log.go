// Package log provides the host's structured logger. It follows the
// same shape the rest of the stack uses: a package-global zerolog
// Logger, an Init(Config) to configure it once at startup, and small
// With* helpers that attach the identifiers most log lines need.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level represents a logging verbosity level.
type Level string

const (
	TraceLevel Level = "trace"
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case TraceLevel:
		level = zerolog.TraceLevel
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithHost creates a child logger carrying the host id.
func WithHost(hostID string) zerolog.Logger {
	return Logger.With().Str("host_id", hostID).Logger()
}

// WithLattice creates a child logger carrying the lattice name.
func WithLattice(lattice string) zerolog.Logger {
	return Logger.With().Str("lattice", lattice).Logger()
}

// WithComponent creates a child logger carrying a component id.
func WithComponent(componentID string) zerolog.Logger {
	return Logger.With().Str("component_id", componentID).Logger()
}

// WithProvider creates a child logger carrying a provider id.
func WithProvider(providerID string) zerolog.Logger {
	return Logger.With().Str("provider_id", providerID).Logger()
}

// WithLink creates a child logger carrying link coordinates.
func WithLink(sourceID, name string) zerolog.Logger {
	return Logger.With().Str("source_id", sourceID).Str("link_name", name).Logger()
}

// WithInvocation creates a child logger carrying an invocation id.
func WithInvocation(invocationID string) zerolog.Logger {
	return Logger.With().Str("invocation_id", invocationID).Logger()
}

// Redacted returns a fixed placeholder instead of a secret value, so
// call sites can interpolate a secret into a log line without ever
// emitting the value itself.
func Redacted(string) string {
	return "<redacted>"
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) { Logger.Fatal().Msg(msg) }

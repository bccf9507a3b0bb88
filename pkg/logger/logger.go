package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var pid = os.Getpid()

type Logger struct {
	logger *zerolog.Logger
}

// New returns a JSON logger tagged with the component name.
func New(debug bool, tag string) *Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stderr).With().
		Timestamp().
		Int("pid", pid).
		Str("c", tag).
		Logger()
	return &Logger{logger: &logger}
}

// NewConsole returns a human-readable logger for interactive runs.
func NewConsole(debug bool, tag string, noColor bool) *Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000", NoColor: noColor}
	logger := zerolog.New(output).With().
		Str("c", tag).
		Timestamp().
		Logger()
	return &Logger{logger: &logger}
}

func Default() *Logger { return &Logger{logger: &log.Logger} }

func (l *Logger) GetLevel() zerolog.Level           { return l.logger.GetLevel() }
func (l *Logger) Output(w io.Writer) zerolog.Logger { return l.logger.Output(w) }

// With creates a child logger context; pair with Extend.
func (l *Logger) With() zerolog.Context { return l.logger.With() }

// Extend adds some additional context to the existing logger.
func (l *Logger) Extend(ctx zerolog.Context) *Logger {
	logger := ctx.Logger()
	return &Logger{logger: &logger}
}

func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }
func (l *Logger) Fatal() *zerolog.Event { return l.logger.Fatal() }
func (l *Logger) Panic() *zerolog.Event { return l.logger.Panic() }

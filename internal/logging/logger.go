// Package logging provides the process-wide diagnostics logger.
//
// Diagnostics are developer-facing and go to stderr; the report the user
// asked for goes to stdout and never flows through here.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	// LevelError only logs errors
	LevelError LogLevel = iota
	// LevelWarn logs warnings and errors
	LevelWarn
	// LevelInfo logs general information, warnings and errors
	LevelInfo
	// LevelDebug logs detailed debug information and all above
	LevelDebug
	// LevelTrace logs very detailed trace information and all above
	LevelTrace
)

var zerologLevels = map[LogLevel]zerolog.Level{
	LevelError: zerolog.ErrorLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelDebug: zerolog.DebugLevel,
	LevelTrace: zerolog.TraceLevel,
}

// Logger provides leveled printf-style logging backed by zerolog.
type Logger struct {
	zl zerolog.Logger
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the default logger instance
func GetLogger() *Logger {
	once.Do(func() {
		defaultLogger = NewLogger(os.Stderr)

		// A command-line tool stays quiet unless something went wrong.
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)

		// Set initial log level from environment
		if level := os.Getenv("LOG_LEVEL"); level != "" {
			if l, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
				zerolog.SetGlobalLevel(l)
			}
		}
	})
	return defaultLogger
}

// NewLogger creates a new logger writing console-formatted lines to w
func NewLogger(w *os.File) *Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006/01/02 15:04:05.000",
	}
	return &Logger{
		zl: zerolog.New(output).With().Timestamp().Logger(),
	}
}

// SetLevel sets the logging level for every logger in the process,
// including sub-loggers created before the call.
func (l *Logger) SetLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerologLevels[level])
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

// Trace logs a trace message
func (l *Logger) Trace(format string, args ...interface{}) {
	l.zl.Trace().Msgf(format, args...)
}

// WithPrefix creates a new logger tagged with a component name
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{
		zl: l.zl.With().Str("prefix", prefix).Logger(),
	}
}

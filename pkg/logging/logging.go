// Package logging provides structured logging for the embarcadero swap client.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Level represents a log level.
type Level = log.Level

// Log levels.
const (
	DebugLevel = log.DebugLevel
	InfoLevel  = log.InfoLevel
	WarnLevel  = log.WarnLevel
	ErrorLevel = log.ErrorLevel
	FatalLevel = log.FatalLevel
)

// Logger is a charmbracelet logger that can spawn per-component loggers
// on its own writer.
type Logger struct {
	*log.Logger
	timeFormat string
	output     io.Writer
}

// Config holds logger configuration. Zero fields fall back to info level,
// time-of-day stamps and stderr.
type Config struct {
	Level      string
	TimeFormat string
	Prefix     string
	Output     io.Writer
}

// New creates a logger from cfg. A nil cfg gives the defaults.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = &Config{}
	}
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.TimeOnly
	}
	return build(output, timeFormat, cfg.Prefix, ParseLevel(cfg.Level))
}

func build(output io.Writer, timeFormat, prefix string, level Level) *Logger {
	l := log.NewWithOptions(output, log.Options{
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
		Prefix:          prefix,
	})
	l.SetLevel(level)
	return &Logger{Logger: l, timeFormat: timeFormat, output: output}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(&Config{Level: "fatal", Output: io.Discard})
}

// Component returns a logger prefixed with name, sharing the writer and
// current level of l.
func (l *Logger) Component(name string) *Logger {
	return build(l.output, l.timeFormat, name, l.GetLevel())
}

// ParseLevel maps a config string to a level. Unknown strings are info.
func ParseLevel(level string) Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return InfoLevel
	}
	return lvl
}

// OpenFile opens path for appending, creating its directory. An empty path
// means stderr, with a no-op closer.
func OpenFile(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stderr, func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, f.Close, nil
}

var defaultLogger = New(nil)

// SetDefault replaces the logger components fall back to when none is
// configured.
func SetDefault(l *Logger) {
	defaultLogger = l
}

// GetDefault returns the fallback logger.
func GetDefault() *Logger {
	return defaultLogger
}

// Package logger provides the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // trace, debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // console, json
	File   string `json:"file" mapstructure:"file"`     // log file path, empty means no file
}

var (
	globalLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	logFile      *os.File
	mu           sync.RWMutex
)

// ParseLevel converts a level name to zerolog.Level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// New builds a logger writing to out in the configured format. It does not
// touch the global logger or the log file.
func New(config LogConfig, out io.Writer) zerolog.Logger {
	if strings.EqualFold(config.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(ParseLevel(config.Level)).With().Timestamp().Logger()
}

// Init replaces the global logger. Log lines go to stderr and, when
// config.File is set, are appended to that file as JSON.
func Init(config LogConfig) error {
	mu.Lock()
	defer mu.Unlock()

	closeFileLocked()

	var out io.Writer = os.Stderr
	if strings.EqualFold(config.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	if config.File != "" {
		if err := os.MkdirAll(filepath.Dir(config.File), 0755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", config.File, err)
		}
		logFile = f
		out = zerolog.MultiLevelWriter(out, f)
	}

	globalLogger = zerolog.New(out).Level(ParseLevel(config.Level)).With().Timestamp().Logger()
	return nil
}

// Get returns the global logger.
func Get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	l := Get()
	return l.With().Str("component", name).Logger()
}

// Close closes the log file if one is open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return closeFileLocked()
}

func closeFileLocked() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// Info returns an info level event on the global logger.
func Info() *zerolog.Event {
	l := Get()
	return l.Info()
}

// Warn returns a warn level event on the global logger.
func Warn() *zerolog.Event {
	l := Get()
	return l.Warn()
}

// Error returns an error level event on the global logger.
func Error() *zerolog.Event {
	l := Get()
	return l.Error()
}

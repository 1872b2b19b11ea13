// Package logger provides structured logging for the platform, backed by
// logrus. Components receive a *Logger at construction time and tag their
// output with a component field; nothing in this package keeps global state.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls how a Logger is built.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error. Unknown values fall
	// back to info.
	Level string

	// Format selects the formatter: "json" or "text" (default).
	Format string

	// Output selects the sink: "stdout" (default), "stderr" or "file".
	Output string

	// FilePrefix is the log file path prefix when Output is "file". The
	// final name is <prefix>-YYYYMMDD.log.
	FilePrefix string
}

// Logger is a structured logger with a stable field set. It wraps a logrus
// entry so WithField chains and printf-style methods are both available.
type Logger struct {
	*logrus.Entry
}

// New builds a Logger from the given configuration.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch cfg.Format {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	base.SetOutput(resolveOutput(cfg))

	return &Logger{Entry: logrus.NewEntry(base)}
}

// NewDefault builds an info-level text Logger tagged with the given
// component name. It is the constructor used by tests and small tools.
func NewDefault(component string) *Logger {
	log := New(LoggingConfig{Level: "info", Format: "text", Output: "stdout"})
	return log.Named(component)
}

// Named returns a copy of the logger tagged with a component field.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", component)}
}

// WithField returns an entry with an extra field attached.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Entry.WithField(key, value)
}

// WithFields returns an entry with extra fields attached.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.Entry.WithFields(logrus.Fields(fields))
}

// WithError returns an entry with the error attached under the "error" key.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Entry.WithError(err)
}

// SetOutput redirects the underlying sink. Mainly used by tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.Entry.Logger.SetOutput(w)
}

func resolveOutput(cfg LoggingConfig) io.Writer {
	switch cfg.Output {
	case "stderr":
		return os.Stderr
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "platform"
		}
		name := fmt.Sprintf("%s-%s.log", prefix, time.Now().Format("20060102"))
		if dir := filepath.Dir(name); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return os.Stdout
			}
		}
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return os.Stdout
		}
		return f
	default:
		return os.Stdout
	}
}

// Package logging configures the structured logger shared by every
// long-running component in this module (the JWT refresh stream and the
// realtime session).
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where log output goes and how verbose it is.
type Options struct {
	// Level is parsed with logrus.ParseLevel; an empty string defaults to "info".
	Level string

	// FilePath, when set, additionally rotates logs into this file via
	// lumberjack instead of only writing to stderr.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a *logrus.Logger. The component argument is not used: the
// returned logger adds no fields of its own, and entries carry a
// "component" field only when logged through WithComponent.
func New(component string, opts Options) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var out io.Writer = os.Stderr
	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 14),
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotator)
	}
	logger.SetOutput(out)

	return logger
}

// WithComponent returns an entry pre-populated with the component field,
// for per-subsystem logging.
func WithComponent(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

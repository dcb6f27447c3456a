// Package logging builds the process logger: logrus with a JSON formatter, written to stderr
// or to a size-rotated file through lumberjack.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for LOG_FILE.
const (
	maxSizeMB  = 10
	maxBackups = 3
	maxAgeDays = 28
)

// Options configures New.
type Options struct {
	// Level is a logrus level name; unknown or empty values fall back to info.
	Level string
	// File, when non-empty, is the path of a rotating log file.
	File string
	// Service is attached to every entry as the "service" field.
	Service string
}

// New returns a logger configured from opts and a closer for the underlying file, if any.
func New(opts Options) (*logrus.Entry, io.Closer) {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	l.SetLevel(ParseLevel(opts.Level))

	var closer io.Closer = nopCloser{}
	if f := strings.TrimSpace(opts.File); f != "" {
		rot := &lumberjack.Logger{
			Filename:   f,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
		l.SetOutput(rot)
		closer = rot
	} else {
		l.SetOutput(os.Stderr)
	}

	entry := logrus.NewEntry(l)
	if opts.Service != "" {
		entry = entry.WithField("service", opts.Service)
	}
	return entry, closer
}

// ParseLevel maps a level name to a logrus level, defaulting to info.
func ParseLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Discard returns a logger that drops everything. Used by tests and as a nil-safe default.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Package logging configures the structured run log.
//
// User-facing output goes through internal/terminal; this log is the
// detailed record written to <log_dir>/onyx.log.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	Dir     string // log directory; empty disables the file sink
	Level   string // debug, info, warn, error
	Verbose bool   // mirror log lines to stderr
}

// New returns a logger and a close function for its file sink.
func New(opts Options) (zerolog.Logger, func() error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	closeFn := func() error { return nil }

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err == nil {
			file := &lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, "onyx.log"),
				MaxSize:    15, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			}
			writers = append(writers, file)
			closeFn = file.Close
		}
	}
	if opts.Verbose {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	if len(writers) == 0 {
		return zerolog.Nop(), closeFn
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, closeFn
}

// Nop returns a disabled logger for tests and library callers.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

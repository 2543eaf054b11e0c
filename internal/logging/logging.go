package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options mirrors the global.log_* configuration keys.
type Options struct {
	Level  string
	Format string // json or console
	// File, when set, receives a rotated JSON copy of every line.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Configure builds a zerolog logger from config values.
func Configure(opts Options) zerolog.Logger {
	return New(os.Stdout, opts)
}

// New is Configure with an explicit console sink.
func New(out io.Writer, opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer = out
	if strings.EqualFold(opts.Format, "console") {
		output = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if opts.File != "" {
		output = zerolog.MultiLevelWriter(output, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(output).Level(lvl).With().Timestamp().Logger()
}

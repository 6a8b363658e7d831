// Package logging provides the structured logger used by the CLI and the
// broker daemon.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New creates a console logger writing to w. Verbose enables debug level.
//
// The progress UI owns stderr while bars are rendering, so callers should
// pass the UI's writer (which prints above the bars) during transfers.
func New(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// NewDefault creates a console logger writing to stderr at info level.
func NewDefault() zerolog.Logger {
	return New(os.Stderr, false)
}

// NewService creates a JSON logger for the broker daemon. Service logs are
// consumed by log shippers, not humans, so no console formatting.
func NewService(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).
		Level(level).
		With().
		Timestamp().
		Logger()
}

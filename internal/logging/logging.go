// Package logging builds the charmbracelet loggers shared by policygraph components.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Options configures a logger
type Options struct {
	// Level is one of debug, info, warn, error (default info)
	Level string

	// Verbose forces debug level regardless of Level
	Verbose bool

	// Output defaults to stderr
	Output io.Writer
}

// New creates a logger writing to stderr (or opts.Output)
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := log.InfoLevel
	if opts.Level != "" {
		if parsed, err := log.ParseLevel(strings.ToLower(opts.Level)); err == nil {
			level = parsed
		}
	}
	if opts.Verbose {
		level = log.DebugLevel
	}

	return log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "policygraph",
	})
}

// Discard returns a logger that drops everything
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// Component returns a child logger tagged with the component name
func Component(logger *log.Logger, name string) *log.Logger {
	if logger == nil {
		logger = Discard()
	}
	return logger.With("component", name)
}

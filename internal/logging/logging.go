package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
)

var ErrUnknownLevel = errors.New("unknown log level")

// New returns a logger that writes records of at least the given level to w.
func New(w io.Writer, level pterm.LogLevel) *pterm.Logger {
	return pterm.DefaultLogger.
		WithWriter(w).
		WithLevel(level).
		WithTime(true).
		WithTimeFormat("02 Jan 15:04:05.000").
		WithMaxWidth(1000)
}

// Default logs warnings and errors to stderr.
func Default() *pterm.Logger {
	return New(os.Stderr, pterm.LogLevelWarn)
}

// Discard drops every record.
func Discard() *pterm.Logger {
	return pterm.DefaultLogger.WithWriter(io.Discard).WithLevel(pterm.LogLevelError)
}

// ParseLevel maps a level name to its pterm level.
func ParseLevel(name string) (pterm.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return pterm.LogLevelTrace, nil
	case "debug":
		return pterm.LogLevelDebug, nil
	case "info":
		return pterm.LogLevelInfo, nil
	case "warn", "warning":
		return pterm.LogLevelWarn, nil
	case "error":
		return pterm.LogLevelError, nil
	default:
		return pterm.LogLevelWarn, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
	}
}

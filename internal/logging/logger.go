package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Logger provides leveled logging with redaction support
type Logger struct {
	debug bool
	out   io.Writer
	mu    sync.Mutex

	info       *color.Color
	warn       *color.Color
	err        *color.Color
	debugColor *color.Color
}

// New creates a new logger instance writing to stderr
func New(debug, noColor bool) *Logger {
	return NewWithWriter(os.Stderr, debug, noColor)
}

// NewWithWriter creates a logger writing to w. Used by tests to capture output.
func NewWithWriter(w io.Writer, debug, noColor bool) *Logger {
	l := &Logger{
		debug:      debug,
		out:        w,
		info:       color.New(color.FgGreen),
		warn:       color.New(color.FgYellow),
		err:        color.New(color.FgRed),
		debugColor: color.New(color.FgCyan),
	}
	if noColor {
		for _, c := range []*color.Color{l.info, l.warn, l.err, l.debugColor} {
			c.DisableColor()
		}
	} else {
		for _, c := range []*color.Color{l.info, l.warn, l.err, l.debugColor} {
			c.EnableColor()
		}
	}
	return l
}

// DebugEnabled reports whether debug output is on
func (l *Logger) DebugEnabled() bool {
	return l.debug
}

func (l *Logger) write(c *color.Color, glyph, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s %s\n", c.Sprint(glyph), msg)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(l.info, "✓", format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(l.warn, "⚠", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(l.err, "✗", format, args...)
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.write(l.debugColor, "[DEBUG]", format, args...)
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces sensitive values in a string with [REDACTED]
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}

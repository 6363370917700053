package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systmms/passup/internal/logging"
)

// TestLogger captures log output for validation in tests.
//
// It embeds a real *logging.Logger writing without color to an in-memory
// buffer, so it can be handed to any component that takes *logging.Logger,
// and tests can verify that secrets are properly redacted and that expected
// log messages are produced.
//
// Example usage:
//
//	logger := NewTestLogger(t)
//	engine := secretstores.NewKDBXEngine(secretstores.Options{Logger: logger.Logger})
//
//	logger.AssertContains(t, "dropped")
//	logger.AssertNotContains(t, "password123")
type TestLogger struct {
	*logging.Logger
	buffer *syncBuffer
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// NewTestLogger creates a new TestLogger with debug output disabled.
func NewTestLogger(t *testing.T) *TestLogger {
	t.Helper()
	return NewTestLoggerWithDebug(t, false)
}

// NewTestLoggerWithDebug creates a new TestLogger; when debug is true Debug
// messages are captured as well.
func NewTestLoggerWithDebug(t *testing.T, debug bool) *TestLogger {
	t.Helper()

	buf := &syncBuffer{}
	return &TestLogger{
		Logger: logging.NewWithWriter(buf, debug, true),
		buffer: buf,
	}
}

// Capture executes a function and captures its log output.
//
// This is useful for testing functions that log internally.
//
// Example:
//
//	output := logger.Capture(func() {
//	    someFunction()
//	})
func (l *TestLogger) Capture(fn func()) string {
	l.Clear() // Start with clean buffer
	fn()
	return l.GetOutput()
}

// GetOutput returns the captured log output as a string.
//
// The output includes all log messages captured since the logger
// was created or since the last Clear() call.
func (l *TestLogger) GetOutput() string {
	l.buffer.mu.Lock()
	defer l.buffer.mu.Unlock()

	return l.buffer.buf.String()
}

// Clear clears the captured log output.
//
// This is useful when reusing the same logger across multiple test cases.
func (l *TestLogger) Clear() {
	l.buffer.mu.Lock()
	defer l.buffer.mu.Unlock()

	l.buffer.buf.Reset()
}

// AssertContains asserts that the log output contains the specified substring.
//
// This is a convenience wrapper around testify's Contains assertion.
func (l *TestLogger) AssertContains(t *testing.T, substr string) {
	t.Helper()

	output := l.GetOutput()
	assert.Contains(t, output, substr, "Expected log output to contain %q", substr)
}

// AssertNotContains asserts that the log output does NOT contain the specified substring.
//
// This is particularly useful for verifying that secrets are redacted.
func (l *TestLogger) AssertNotContains(t *testing.T, substr string) {
	t.Helper()

	output := l.GetOutput()
	assert.NotContains(t, output, substr, "Expected log output to NOT contain %q", substr)
}

// AssertRedacted asserts that a secret value is redacted in the log output.
//
// This checks that:
// 1. The secret value itself does NOT appear in logs
// 2. The [REDACTED] marker DOES appear in logs
//
// This is the primary assertion for security tests.
func (l *TestLogger) AssertRedacted(t *testing.T, secretValue string) {
	t.Helper()

	output := l.GetOutput()

	// Secret value must not appear
	assert.NotContains(t, output, secretValue,
		"Secret value %q should be redacted, but appears in logs", secretValue)

	// [REDACTED] marker should appear
	assert.Contains(t, output, "[REDACTED]",
		"Expected [REDACTED] marker in logs when secret is used")
}

// AssertLogCount asserts that a specific log level appears a certain number of times.
//
// Level markers:
//   - Info: "✓"
//   - Warn: "⚠"
//   - Error: "✗"
//   - Debug: "[DEBUG]"
func (l *TestLogger) AssertLogCount(t *testing.T, level string, count int) {
	t.Helper()

	output := l.GetOutput()

	var marker string
	switch level {
	case "info":
		marker = "✓"
	case "warn":
		marker = "⚠"
	case "error":
		marker = "✗"
	case "debug":
		marker = "[DEBUG]"
	default:
		t.Fatalf("Unknown log level: %s", level)
	}

	actual := strings.Count(output, marker)
	assert.Equal(t, count, actual,
		"Expected %d %s log messages, got %d", count, level, actual)
}

// AssertEmpty asserts that no log output was captured.
//
// Useful for verifying that quiet operations produce no logs.
func (l *TestLogger) AssertEmpty(t *testing.T) {
	t.Helper()

	output := l.GetOutput()
	assert.Empty(t, output, "Expected no log output, but got:\n%s", output)
}

// Lines returns the log output split into individual lines.
//
// Empty lines are filtered out. Useful for line-by-line validation.
func (l *TestLogger) Lines() []string {
	output := l.GetOutput()
	lines := strings.Split(output, "\n")

	// Filter empty lines
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}

	return result
}

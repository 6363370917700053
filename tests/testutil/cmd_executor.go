package testutil

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	pkgexec "github.com/systmms/passup/pkg/exec"
)

// MockCommandExecutor provides a configurable mock for the store engines and
// the rotation scheduler. It implements pkg/exec.CommandExecutor.
type MockCommandExecutor struct {
	mu sync.Mutex

	// Responses maps command patterns to their mock responses.
	// Key format: "command arg1 arg2" (space-separated command and args)
	Responses map[string]MockResponse

	// Handler, when set, computes the response for every call and takes
	// precedence over Responses. It runs without the mock's lock held, so
	// concurrent callers really run concurrently.
	Handler func(ctx context.Context, call RecordedCall) MockResponse

	// DefaultResponse is used when no matching pattern is found.
	DefaultResponse *MockResponse

	// RecordedCalls stores all calls made for verification.
	RecordedCalls []RecordedCall

	// StrictMode causes calls to fail if no matching response is found.
	StrictMode bool
}

// MockResponse defines the expected output for a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
	// ExitCode, when non-zero and Err is nil, makes the call fail with an
	// ExitError carrying this code.
	ExitCode int
}

// RecordedCall stores information about a command execution.
type RecordedCall struct {
	Command string
	Args    []string
	Env     []string
	Stdin   string
	Context context.Context
}

// Key returns the space separated command line of the call.
func (c RecordedCall) Key() string {
	if len(c.Args) == 0 {
		return c.Command
	}
	return c.Command + " " + strings.Join(c.Args, " ")
}

// EnvValue returns the value of name in the call's extra environment.
func (c RecordedCall) EnvValue(name string) (string, bool) {
	for _, kv := range c.Env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == name {
			return v, true
		}
	}
	return "", false
}

// ExitError simulates a process that ran and exited with a non-zero status.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("exit status %d: %s", e.Code, e.Stderr)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode makes ExitError understood by pkg/exec.ExitCode.
func (e *ExitError) ExitCode() int {
	return e.Code
}

var _ pkgexec.CommandExecutor = (*MockCommandExecutor)(nil)

// NewMockCommandExecutor creates a new mock executor with empty responses.
func NewMockCommandExecutor() *MockCommandExecutor {
	return &MockCommandExecutor{
		Responses:     make(map[string]MockResponse),
		RecordedCalls: make([]RecordedCall, 0),
	}
}

// Execute returns the mocked response for the given command.
func (m *MockCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return m.Run(ctx, pkgexec.Command{Name: name, Args: args})
}

// Run records c and returns the mocked response for it.
func (m *MockCommandExecutor) Run(ctx context.Context, c pkgexec.Command) ([]byte, []byte, error) {
	call := RecordedCall{
		Command: c.Name,
		Args:    append([]string(nil), c.Args...),
		Env:     append([]string(nil), c.Env...),
		Context: ctx,
	}
	if c.Stdin != nil {
		in, err := io.ReadAll(c.Stdin)
		if err != nil {
			return nil, nil, fmt.Errorf("mock: read stdin: %w", err)
		}
		call.Stdin = string(in)
	}

	m.mu.Lock()
	m.RecordedCalls = append(m.RecordedCalls, call)
	handler := m.Handler
	m.mu.Unlock()

	if handler != nil {
		return respond(handler(ctx, call))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := call.Key()

	// Try exact match first
	if resp, ok := m.Responses[key]; ok {
		return respond(resp)
	}

	// Longest matching prefix wins so specific patterns beat generic ones.
	best := ""
	for pattern := range m.Responses {
		if m.matchesPattern(key, pattern) && len(pattern) > len(best) {
			best = pattern
		}
	}
	if best != "" {
		return respond(m.Responses[best])
	}

	// Use default response if available
	if m.DefaultResponse != nil {
		return respond(*m.DefaultResponse)
	}

	// Strict mode fails on unknown commands
	if m.StrictMode {
		return nil, nil, fmt.Errorf("mock: no response configured for command: %s", key)
	}

	// Non-strict mode returns empty success
	return []byte{}, []byte{}, nil
}

func respond(resp MockResponse) ([]byte, []byte, error) {
	if resp.Err == nil && resp.ExitCode != 0 {
		return resp.Stdout, resp.Stderr, &ExitError{Code: resp.ExitCode, Stderr: string(resp.Stderr)}
	}
	return resp.Stdout, resp.Stderr, resp.Err
}

// matchesPattern checks if the command key matches a pattern.
// Supports simple prefix matching for flexible response configuration.
func (m *MockCommandExecutor) matchesPattern(key, pattern string) bool {
	// Support wildcard patterns with "*"
	if strings.Contains(pattern, "*") {
		return strings.HasPrefix(key, strings.Split(pattern, "*")[0])
	}

	// Check if key starts with pattern (allows additional args)
	return strings.HasPrefix(key, pattern)
}

// AddResponse registers a mock response for a specific command pattern.
func (m *MockCommandExecutor) AddResponse(commandPattern string, response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[commandPattern] = response
}

// AddErrorResponse adds a non-zero exit response for a command pattern.
func (m *MockCommandExecutor) AddErrorResponse(commandPattern string, errMsg string, exitCode int) {
	m.AddResponse(commandPattern, MockResponse{
		Stdout:   []byte{},
		Stderr:   []byte(errMsg),
		ExitCode: exitCode,
	})
}

// Calls returns a copy of every recorded call.
func (m *MockCommandExecutor) Calls() []RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedCall(nil), m.RecordedCalls...)
}

// GetCalls returns all recorded calls matching the given command name.
func (m *MockCommandExecutor) GetCalls(commandName string) []RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []RecordedCall
	for _, call := range m.RecordedCalls {
		if call.Command == commandName {
			matches = append(matches, call)
		}
	}
	return matches
}

// CallCount returns the number of recorded calls.
func (m *MockCommandExecutor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RecordedCalls)
}

// AssertCallCount verifies the exact number of times a command was called.
func (m *MockCommandExecutor) AssertCallCount(t interface{ Error(args ...interface{}) }, commandName string, expected int) bool {
	calls := m.GetCalls(commandName)
	if len(calls) != expected {
		t.Error("expected command", commandName, "to be called", expected, "times, but was called", len(calls), "times")
		return false
	}
	return true
}

// AssertNotCalled verifies that a specific command was never called.
func (m *MockCommandExecutor) AssertNotCalled(t interface{ Error(args ...interface{}) }, commandName string) bool {
	return m.AssertCallCount(t, commandName, 0)
}

// PassMockResponses provides pre-configured responses for pass CLI.
type PassMockResponses struct{}

// Show returns a mock pass entry: the password line followed by extra data.
func (PassMockResponses) Show(password string) MockResponse {
	return MockResponse{
		Stdout: []byte(password + "\nurl: https://example.com\n"),
	}
}

// NotFound returns the response pass gives for a missing entry.
func (PassMockResponses) NotFound(path string) MockResponse {
	return MockResponse{
		Stderr:   []byte("Error: " + path + " is not in the password store.\n"),
		ExitCode: 1,
	}
}

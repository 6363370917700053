// Package exec provides abstractions for command execution.
// This package enables testable code by allowing subprocesses to be mocked.
package exec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// Command describes a subprocess invocation.
type Command struct {
	Name string
	Args []string
	// Env is appended to the current process environment.
	Env   []string
	Stdin io.Reader
}

// CommandExecutor defines an interface for executing subprocesses.
// This abstraction allows for mocking CLI tool behavior in tests.
type CommandExecutor interface {
	// Execute runs a command with the given context and arguments.
	// Returns stdout, stderr, and any error that occurred.
	Execute(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)

	// Run runs a fully described command.
	Run(ctx context.Context, cmd Command) (stdout []byte, stderr []byte, err error)
}

// RealCommandExecutor executes actual commands using os/exec.
// This is the production implementation.
type RealCommandExecutor struct{}

// Execute runs an actual command.
func (r *RealCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return r.Run(ctx, Command{Name: name, Args: args})
}

// Run runs an actual command with optional extra environment and stdin.
func (r *RealCommandExecutor) Run(ctx context.Context, c Command) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != nil {
		cmd.Stdin = c.Stdin
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// DefaultExecutor returns the standard production executor.
// This is used as the default when no executor is injected.
func DefaultExecutor() CommandExecutor {
	return &RealCommandExecutor{}
}

// ExitCode extracts the process exit code from an error returned by an executor.
// It returns 0 for a nil error and -1 when the process never produced a status
// (spawn failure, killed by context).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return -1
}

package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the store engines and the scheduler.
var (
	// ErrWrongPassphrase means the container rejected the passphrase; the
	// caller re-prompts instead of failing the source.
	ErrWrongPassphrase = errors.New("wrong passphrase")
	// ErrUnresolvedReference means a field reference points at no entry.
	ErrUnresolvedReference = errors.New("unresolved field reference")
	// ErrCyclicReference means a reference chain revisits an entry.
	ErrCyclicReference = errors.New("cyclic field reference")
	// ErrIdentityMismatch means an entry carries an identity produced by a
	// different engine than the one asked to locate it.
	ErrIdentityMismatch = errors.New("identity does not belong to this store")
	// ErrLocked means Parse or Rewrite was called before a successful Unlock.
	ErrLocked = errors.New("store is locked")
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// CommandError represents a command execution error
type CommandError struct {
	Command    string
	ExitCode   int
	Message    string
	Suggestion string
}

func (e CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// SourceError ties an engine failure to the container it happened on.
type SourceError struct {
	Source string
	Path   string
	Op     string
	Err    error
}

func (e *SourceError) Error() string {
	where := e.Source
	if e.Path != "" {
		where = fmt.Sprintf("%s (%s)", e.Source, e.Path)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, where, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// WrapSource returns a SourceError, or nil when err is nil.
func WrapSource(source, path, op string, err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Source: source, Path: path, Op: op, Err: err}
}

// EntryError describes a problem with one credential; it never aborts a source.
type EntryError struct {
	Site     string
	Username string
	Err      error
}

func (e *EntryError) Error() string {
	switch {
	case e.Site != "" && e.Username != "":
		return fmt.Sprintf("entry %s (%s): %v", e.Site, e.Username, e.Err)
	case e.Site != "":
		return fmt.Sprintf("entry %s: %v", e.Site, e.Err)
	default:
		return fmt.Sprintf("entry: %v", e.Err)
	}
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// WrapCommandNotFound wraps command not found errors with helpful suggestions
func WrapCommandNotFound(command string, err error) error {
	suggestions := map[string]string{
		"nightwatch":    "Install Nightwatch: npm install -g nightwatch",
		"firefox":       "Install Firefox and make sure 'firefox' is in your PATH",
		"google-chrome": "Install Google Chrome and make sure 'google-chrome' is in your PATH",
		"pass":          "Install pass: https://www.passwordstore.org/",
	}

	suggestion := suggestions[command]
	if suggestion == "" {
		suggestion = fmt.Sprintf("Make sure '%s' is installed and in your PATH", command)
	}

	msg := "command not found"
	if err != nil {
		msg = fmt.Sprintf("command not found: %v", err)
	}

	return CommandError{
		Command:    command,
		Message:    msg,
		Suggestion: suggestion,
	}
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	var userErr UserError
	var cfgErr ConfigError
	var cmdErr CommandError
	if errors.As(err, &userErr) || errors.As(err, &cfgErr) || errors.As(err, &cmdErr) {
		return err
	}

	errStr := err.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Details:    errStr,
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Details:    errStr,
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}

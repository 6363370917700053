// Package prompt reads container passphrases from the operator.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Prompter asks for a passphrase. Engines call it again after a wrong
// passphrase, so implementations must be re-entrant.
type Prompter interface {
	Passphrase(label string) (string, error)
}

// TerminalPrompter reads without echo when stdin is a terminal and falls back
// to reading one line per call otherwise (piped input).
type TerminalPrompter struct {
	in  *os.File
	out io.Writer

	once   sync.Once
	reader *bufio.Reader
}

// NewTerminalPrompter prompts on stderr and reads from stdin.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{in: os.Stdin, out: os.Stderr}
}

// Passphrase implements Prompter.
func (p *TerminalPrompter) Passphrase(label string) (string, error) {
	fmt.Fprint(p.out, label)

	fd := int(p.in.Fd())
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(p.out) // Add newline after hidden input
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase: %w", err)
		}
		return string(pw), nil
	}

	p.once.Do(func() { p.reader = bufio.NewReader(p.in) })
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Sequence replays fixed answers in order, then fails with io.EOF. It backs
// non-interactive runs where passphrases come from the environment, and tests.
type Sequence struct {
	mu      sync.Mutex
	answers []string
	Asked   []string
}

// NewSequence returns a Sequence prompter.
func NewSequence(answers ...string) *Sequence {
	return &Sequence{answers: answers}
}

// Passphrase implements Prompter.
func (s *Sequence) Passphrase(label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Asked = append(s.Asked, label)
	if len(s.answers) == 0 {
		return "", fmt.Errorf("no passphrase available for %q: %w", label, io.EOF)
	}
	next := s.answers[0]
	s.answers = s.answers[1:]
	return next, nil
}

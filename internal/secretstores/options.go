// Package secretstores implements the container engines: KeePass (KDBX),
// Password Safe v3, the Chrome login database and pass(1).
//
// Every engine satisfies store.Engine. Engines are single-use: build one per
// source, call Unlock, Parse and Rewrite in order, then Close.
package secretstores

import (
	"context"
	"errors"
	"fmt"

	dserrors "github.com/systmms/passup/internal/errors"
	"github.com/systmms/passup/internal/generator"
	"github.com/systmms/passup/internal/keyring"
	"github.com/systmms/passup/internal/logging"
	"github.com/systmms/passup/internal/prompt"
	pkgexec "github.com/systmms/passup/pkg/exec"
)

// Options carries the collaborators an engine may need. Engines ignore the
// ones they do not use.
type Options struct {
	// Name identifies the source in logs and errors.
	Name string
	// Path is the container file (or the store directory for pass).
	Path string

	Prompter  prompt.Prompter
	Generator generator.Generator
	Keyring   keyring.Provider
	Executor  pkgexec.CommandExecutor
	Logger    *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = o.Path
	}
	if o.Logger == nil {
		o.Logger = logging.New(false, true)
	}
	if o.Prompter == nil {
		o.Prompter = prompt.NewTerminalPrompter()
	}
	if o.Executor == nil {
		o.Executor = pkgexec.DefaultExecutor()
	}
	if o.Generator == nil {
		// DefaultPolicy always validates.
		g, _ := generator.NewPasswordGenerator(generator.DefaultPolicy())
		o.Generator = g
	}
	return o
}

// promptUnlock asks for a passphrase until open accepts it. A wrong
// passphrase re-prompts; any other failure, including a prompt that can no
// longer answer, is returned.
func promptUnlock(ctx context.Context, opts Options, open func(passphrase []byte) error) error {
	label := fmt.Sprintf("Passphrase for %s (%s): ", opts.Name, opts.Path)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		pass, err := opts.Prompter.Passphrase(label)
		if err != nil {
			return fmt.Errorf("read passphrase: %w", err)
		}
		err = open([]byte(pass))
		if err == nil {
			opts.Logger.Debug("Unlocked %s after %d attempt(s)", opts.Name, attempt)
			return nil
		}
		if !errors.Is(err, dserrors.ErrWrongPassphrase) {
			return err
		}
		opts.Logger.Warn("Wrong passphrase for %s, try again", opts.Name)
	}
}

// newSecret generates the replacement secret for one entry.
func newSecret(g generator.Generator, label string) (string, error) {
	s, err := g.Generate()
	if err != nil {
		return "", fmt.Errorf("generate secret for %s: %w", label, err)
	}
	return s, nil
}

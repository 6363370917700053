package commands

import (
	"io"
	"os"
	"os/exec"

	"github.com/systmms/passup/internal/keyring"
	"github.com/systmms/passup/internal/logging"
	"github.com/systmms/passup/internal/prompt"
	pkgexec "github.com/systmms/passup/pkg/exec"
)

// Globals is shared by all commands. The root command fills in the flag
// values before a subcommand runs; tests replace the collaborators.
type Globals struct {
	ConfigPath string
	Logger     *logging.Logger
	Out        io.Writer

	Executor pkgexec.CommandExecutor
	Prompter prompt.Prompter
	// Keyring, when nil, is built from the configuration.
	Keyring  keyring.Provider
	LookPath func(file string) (string, error)
}

// NewGlobals returns production collaborators.
func NewGlobals() *Globals {
	return &Globals{
		Logger:   logging.New(false, false),
		Out:      os.Stdout,
		Executor: pkgexec.DefaultExecutor(),
		Prompter: prompt.NewTerminalPrompter(),
		LookPath: exec.LookPath,
	}
}

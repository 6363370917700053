package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/systmms/passup/cmd/passup/commands"
	"github.com/systmms/passup/internal/config"
	dserrors "github.com/systmms/passup/internal/errors"
	"github.com/systmms/passup/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run()
	// Wipe protected passphrases and keys before exiting.
	memguard.Purge()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	var (
		noColor bool
		debug   bool
	)

	g := commands.NewGlobals()

	rootCmd := &cobra.Command{
		Use:   "passup",
		Short: "Rotate the passwords stored in your password databases",
		Long: `passup reads credentials from KeePass, Password Safe, Chrome and pass
stores, changes each password on its website through a Nightwatch script,
and writes the new passwords back into the store.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			g.Logger = logging.New(debug, noColor)
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.ConfigPath, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewRotateCommand(g),
		commands.NewDoctorCommand(g),
		commands.NewHistoryCommand(g),
		commands.NewVersionCommand(version, commit, date),
	)

	return rootCmd.Execute()
}

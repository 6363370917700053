package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/passup/internal/config"
	"github.com/systmms/passup/internal/generator"
	"github.com/systmms/passup/internal/keyring"
	"github.com/systmms/passup/internal/rotation"
	"github.com/systmms/passup/internal/rotation/storage"
	"github.com/systmms/passup/internal/secretstores"
)

// NewRotateCommand creates the rotate command.
func NewRotateCommand(g *Globals) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate every password of the active profile",
		Long: `Unlock each source of the active profile, change the password of every
entry that has a site script, and write the new passwords back.

A failed script keeps the old password for that entry. If a store cannot be
written back after passwords were already changed, all of its credentials are
printed so that none are lost.`,
		Example: `  # See which entries would be rotated with which script
  passup rotate --dry-run

  # Rotate using another configuration
  passup --config ~/work.yaml rotate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.ConfigPath)
			if err != nil {
				return err
			}

			runner, sources, err := buildRun(g, cfg, dryRun)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			profile, _ := cfg.ActiveProfile()
			g.Logger.Info("Rotating profile %s (%d source(s))", profile, len(sources))
			report := runner.Run(ctx, sources)
			printReport(g.Out, report)

			if path := cfg.MetricsFile(); path != "" && !dryRun {
				if err := runner.Metrics.WriteTextfile(path); err != nil {
					g.Logger.Warn("Could not write metrics to %s: %v", path, err)
				}
			}

			if report.Failed() {
				return fmt.Errorf("one or more sources failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Route entries and report without running scripts or writing")

	return cmd
}

// buildRun wires the engines and the runner for the active profile.
func buildRun(g *Globals, cfg *config.Config, dryRun bool) (*rotation.Runner, []rotation.Source, error) {
	gen, err := generator.NewPasswordGenerator(cfg.GeneratorPolicy())
	if err != nil {
		return nil, nil, err
	}

	kr := g.Keyring
	if kr == nil {
		kr = keyring.NewSecretServiceProvider(cfg.Keyring())
	}

	registry := secretstores.NewRegistry()
	var sources []rotation.Source
	for _, sc := range cfg.Sources() {
		engine, err := registry.Create(sc.Type, secretstores.Options{
			Name:      sc.Name,
			Path:      sc.File,
			Prompter:  g.Prompter,
			Generator: gen,
			Keyring:   kr,
			Executor:  g.Executor,
			Logger:    g.Logger,
		})
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, rotation.Source{Name: sc.Name, Engine: engine, Blocklist: sc.Blocklist})
	}

	metrics := rotation.NewMetrics()
	runner := &rotation.Runner{
		Router:    cfg.Router(),
		Scheduler: rotation.NewScheduler(cfg.SchedulerConfig(), g.Executor, g.Logger, metrics),
		Logger:    g.Logger,
		Metrics:   metrics,
		DumpOut:   g.Out,
		DryRun:    dryRun,
	}
	if dir := cfg.HistoryDir(); dir != "" {
		runner.Storage = storage.NewFileStorage(dir)
	}
	return runner, sources, nil
}

// printReport writes the per-source summary table.
func printReport(out io.Writer, report *rotation.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	_, _ = fmt.Fprintln(w, "SOURCE\tSTATUS\tPARSED\tROUTED\tSKIPPED\tROTATED\tFAILED")
	_, _ = fmt.Fprintln(w, "------\t------\t------\t------\t-------\t-------\t------")
	for _, s := range report.Sources {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			s.Source, formatStatus(string(s.Status)), s.Parsed, len(s.Routed), s.Skipped, s.Succeeded, s.Failed)
	}
}

// formatStatus adds the status glyph used across tables.
func formatStatus(status string) string {
	switch status {
	case "rotated", "success", "ok":
		return "✓ " + status
	case "failed", "timeout", "spawn_error", "missing":
		return "✗ " + status
	case "partial", "warning":
		return "⚠ " + status
	default:
		return status
	}
}

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/systmms/passup/internal/config"
	"github.com/systmms/passup/internal/rotation/storage"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(g *Globals) *cobra.Command {
	var (
		historyLimit  int
		historySince  string
		historyStatus string
		historyFormat string
		historyPrune  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history [source]",
		Short: "Show past rotation runs",
		Long: `Display the recorded outcome of past runs for one or all sources.

History is only kept when history_dir is set in the configuration or
PASSUP_HISTORY_DIR points at a directory. It never contains passwords.`,
		Example: `  # Show the last runs of every source
  passup history

  # Show failed runs of one source as JSON
  passup history main --status failed --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := storage.DefaultStorageDir()
			if cfg, err := config.Load(g.ConfigPath); err == nil && cfg.HistoryDir() != "" {
				dir = cfg.HistoryDir()
			}
			store := storage.NewFileStorage(dir)

			if historyPrune > 0 {
				if err := store.CleanupOldEntries(historyPrune); err != nil {
					return fmt.Errorf("failed to prune history: %w", err)
				}
				g.Logger.Info("Removed history older than %s", historyPrune)
			}

			var since *time.Time
			if historySince != "" {
				t, err := time.Parse("2006-01-02", historySince)
				if err != nil {
					return fmt.Errorf("invalid since date format (use YYYY-MM-DD): %w", err)
				}
				since = &t
			}

			var (
				entries []storage.HistoryEntry
				err     error
			)
			if len(args) > 0 {
				entries, err = store.GetHistory(args[0], historyLimit)
			} else {
				entries, err = store.GetAllHistory(historyLimit)
			}
			if err != nil {
				return fmt.Errorf("failed to get history: %w", err)
			}
			entries = filterHistoryEntries(entries, since, historyStatus)

			switch historyFormat {
			case "json":
				enc := json.NewEncoder(g.Out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			case "yaml":
				enc := yaml.NewEncoder(g.Out)
				defer func() { _ = enc.Close() }()
				return enc.Encode(entries)
			case "table":
				return outputHistoryTable(g.Out, entries)
			default:
				return fmt.Errorf("unknown format %q (use table, json or yaml)", historyFormat)
			}
		},
	}

	cmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum number of entries to show")
	cmd.Flags().StringVar(&historySince, "since", "", "Show entries since date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&historyStatus, "status", "", "Filter by status: rotated, partial, unchanged, failed, dry_run")
	cmd.Flags().StringVar(&historyFormat, "format", "table", "Output format: table, json, yaml")
	cmd.Flags().DurationVar(&historyPrune, "prune", 0, "Delete entries older than this duration before listing, e.g. 720h")

	return cmd
}

func filterHistoryEntries(entries []storage.HistoryEntry, since *time.Time, status string) []storage.HistoryEntry {
	var filtered []storage.HistoryEntry
	for _, entry := range entries {
		if since != nil && entry.Timestamp.Before(*since) {
			continue
		}
		if status != "" && !strings.EqualFold(entry.Status, status) {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}

func outputHistoryTable(out io.Writer, entries []storage.HistoryEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No rotation history found matching criteria")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	defer w.Flush()

	_, _ = fmt.Fprintln(w, "TIMESTAMP\tSOURCE\tSTATUS\tPARSED\tJOBS\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "---------\t------\t------\t------\t----\t--------\t-----")
	for _, e := range entries {
		errMsg := "-"
		if e.Error != "" {
			errMsg = e.Error
			if len(errMsg) > 60 {
				errMsg = errMsg[:57] + "..."
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Source,
			formatStatus(e.Status),
			e.Parsed,
			len(e.Jobs),
			e.Duration.Round(time.Millisecond),
			errMsg,
		)
	}
	return nil
}

package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/passup/internal/config"
	dserrors "github.com/systmms/passup/internal/errors"
	"github.com/systmms/passup/internal/secretstores"
)

// browserBinaries lists the executables accepted for each browser type.
var browserBinaries = map[string][]string{
	"firefox": {"firefox"},
	"chrome":  {"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"},
}

// CheckResult is one doctor finding.
type CheckResult struct {
	Name    string
	Status  string // ok, warning, missing
	Message string
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand(g *Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies and configuration",
		Long: `Verify that everything a rotation needs is in place.

This command checks:
- Configuration file validity
- The automation binary (nightwatch) and the browser
- pass, for pass profiles
- Script directories and their scripts
- The files of the active profile's sources`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g.Logger.Info("Checking passup configuration...")
			cfg, err := config.Load(g.ConfigPath)
			if err != nil {
				g.Logger.Error("Configuration error: %v", err)
				return fmt.Errorf("failed to load config: %w", err)
			}

			results := runChecks(g, cfg)
			displayCheckResults(g.Out, results)

			passed := 0
			for _, r := range results {
				if r.Status != "missing" {
					passed++
				}
			}
			_, _ = fmt.Fprintf(g.Out, "\nSummary: %d/%d checks passed\n", passed, len(results))
			if passed < len(results) {
				return fmt.Errorf("some checks failed")
			}
			g.Logger.Info("All checks passed")
			return nil
		},
	}

	return cmd
}

func runChecks(g *Globals, cfg *config.Config) []CheckResult {
	var results []CheckResult

	results = append(results, checkBinary(g, "automation", cfg.AutomationBinary()))
	results = append(results, checkBrowser(g, cfg.BrowserType()))

	_, profileType := cfg.ActiveProfile()
	if profileType == secretstores.TypePass {
		results = append(results, checkBinary(g, "pass", "pass"))
	}

	for _, dir := range cfg.ScriptDirs() {
		scripts, _ := filepath.Glob(filepath.Join(dir, "*.js"))
		r := CheckResult{Name: "scripts", Status: "ok", Message: fmt.Sprintf("%s (%d scripts)", dir, len(scripts))}
		if len(scripts) == 0 {
			r.Status = "warning"
		}
		results = append(results, r)
	}
	if len(cfg.ScriptDirs()) == 0 {
		results = append(results, CheckResult{Name: "scripts", Status: "warning", Message: "no script directories configured, nothing will be rotated"})
	}

	for _, src := range cfg.Sources() {
		results = append(results, checkSource(src))
	}
	return results
}

func checkBinary(g *Globals, name, binary string) CheckResult {
	path, err := g.LookPath(binary)
	if err != nil {
		return CheckResult{Name: name, Status: "missing", Message: notFound(binary)}
	}
	return CheckResult{Name: name, Status: "ok", Message: path}
}

func checkBrowser(g *Globals, browser string) CheckResult {
	candidates := browserBinaries[browser]
	for _, bin := range candidates {
		if path, err := g.LookPath(bin); err == nil {
			return CheckResult{Name: "browser", Status: "ok", Message: path}
		}
	}
	return CheckResult{Name: "browser", Status: "missing", Message: notFound(candidates[0])}
}

// notFound is a one-line message with the install hint for binary.
func notFound(binary string) string {
	var cmdErr dserrors.CommandError
	if errors.As(dserrors.WrapCommandNotFound(binary, nil), &cmdErr) {
		return fmt.Sprintf("%s not found. %s", binary, cmdErr.Suggestion)
	}
	return binary + " not found"
}

func checkSource(src config.SourceConfig) CheckResult {
	name := "source " + src.Name
	if src.File == "" {
		return CheckResult{Name: name, Status: "ok", Message: src.Type + " default location"}
	}
	info, err := os.Stat(src.File)
	switch {
	case err != nil:
		return CheckResult{Name: name, Status: "missing", Message: err.Error()}
	case src.Type == secretstores.TypePass && !info.IsDir():
		return CheckResult{Name: name, Status: "missing", Message: src.File + " is not a directory"}
	case src.Type != secretstores.TypePass && info.IsDir():
		return CheckResult{Name: name, Status: "missing", Message: src.File + " is a directory"}
	}
	return CheckResult{Name: name, Status: "ok", Message: src.File}
}

// displayCheckResults shows the findings in a formatted table
func displayCheckResults(out io.Writer, results []CheckResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	_, _ = fmt.Fprintf(w, "CHECK\tSTATUS\tDETAILS\n")
	_, _ = fmt.Fprintf(w, "-----\t------\t-------\n")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, formatStatus(r.Status), r.Message)
	}
}

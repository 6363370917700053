package rotation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/systmms/passup/internal/logging"
	"github.com/systmms/passup/internal/rotation/storage"
	"github.com/systmms/passup/pkg/store"
)

// SourceStatus is the final state of one source after a run.
type SourceStatus string

const (
	// StatusRotated means every routed entry was rotated and written back.
	StatusRotated SourceStatus = "rotated"
	// StatusPartial means some jobs failed; successes were written back.
	StatusPartial SourceStatus = "partial"
	// StatusUnchanged means nothing was rotated and the container was left alone.
	StatusUnchanged SourceStatus = "unchanged"
	// StatusFailed means the source could not be processed or written back.
	StatusFailed SourceStatus = "failed"
	// StatusDryRun means entries were only routed.
	StatusDryRun SourceStatus = "dry_run"
)

// Source is one container to rotate.
type Source struct {
	Name      string
	Engine    store.Engine
	Blocklist []string
}

// SourceReport summarizes one source.
type SourceReport struct {
	Source    string
	Status    SourceStatus
	Parsed    int
	Routed    []Route
	Skipped   int
	Results   []Result
	Succeeded int
	Failed    int
	Err       error
}

// Report summarizes a run.
type Report struct {
	RunID   string
	Sources []SourceReport
}

// Failed reports whether any source failed.
func (r *Report) Failed() bool {
	for _, s := range r.Sources {
		if s.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Runner processes sources one after another.
type Runner struct {
	Router    *Router
	Scheduler *Scheduler
	Logger    *logging.Logger
	// Metrics and Storage are optional.
	Metrics *Metrics
	Storage storage.Storage
	// DumpOut receives the model of a source whose rewrite failed; stdout
	// when nil.
	DumpOut io.Writer
	DryRun  bool
}

// Run processes every source. A failing source never stops the run.
func (r *Runner) Run(ctx context.Context, sources []Source) *Report {
	report := &Report{RunID: uuid.NewString()}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			report.Sources = append(report.Sources, SourceReport{Source: src.Name, Status: StatusFailed, Err: err})
			continue
		}
		start := time.Now()
		sr := r.RunSource(ctx, src)
		if sr.Err != nil {
			r.Logger.Error("Source %s failed: %v", src.Name, sr.Err)
		}
		r.Metrics.RecordSource(sr.Status)
		r.record(report.RunID, src, sr, time.Since(start))
		report.Sources = append(report.Sources, sr)
	}
	return report
}

// RunSource unlocks, parses, rotates and rewrites one source.
func (r *Runner) RunSource(ctx context.Context, src Source) SourceReport {
	sr := SourceReport{Source: src.Name}
	fail := func(err error) SourceReport {
		sr.Status = StatusFailed
		sr.Err = err
		return sr
	}

	engine := src.Engine
	defer func() {
		if err := engine.Close(); err != nil {
			r.Logger.Warn("Closing %s: %v", src.Name, err)
		}
	}()

	r.Logger.Info("Processing source %s (%s)", src.Name, engine.Path())
	if err := engine.Unlock(ctx); err != nil {
		return fail(err)
	}
	model, err := engine.Parse(ctx)
	if err != nil {
		return fail(err)
	}
	sr.Parsed = model.Len()

	entries := model.Entries()
	for i, entry := range entries {
		route, err := r.Router.Route(i, entry, src.Blocklist)
		switch {
		case err == nil:
			sr.Routed = append(sr.Routed, route)
			r.Metrics.RecordRouting(src.Name, "routed")
		case errors.Is(err, ErrBlocked):
			sr.Skipped++
			r.Logger.Debug("Skipping %s: %v", entry.Label(), err)
			r.Metrics.RecordRouting(src.Name, "blocked")
		default:
			sr.Skipped++
			r.Logger.Warn("Skipping %s: %v", entry.Label(), err)
			r.Metrics.RecordRouting(src.Name, "no_script")
		}
	}

	if r.DryRun {
		for _, route := range sr.Routed {
			r.Logger.Info("Would rotate %s with %s", route.Entry.Label(), route.Script)
		}
		sr.Status = StatusDryRun
		return sr
	}

	results, schedErr := r.Scheduler.Run(ctx, src.Name, sr.Routed)
	sr.Results = results
	if schedErr != nil {
		r.Logger.Error("Scheduling %s: %v", src.Name, schedErr)
	}

	// Entries that were never routed keep their old secret.
	updated := make([]store.Entry, len(entries))
	for i, e := range entries {
		updated[i] = e.Reverted()
	}
	for _, res := range results {
		updated[res.Job.Route.Index] = res.Entry
		if res.Outcome == OutcomeSuccess {
			sr.Succeeded++
		} else {
			sr.Failed++
		}
	}
	updatedModel := store.New(updated)

	if len(updatedModel.Changed()) == 0 {
		r.Logger.Info("No password of %s changed, leaving it untouched", src.Name)
		sr.Status = StatusUnchanged
		if sr.Failed > 0 {
			sr.Status = StatusFailed
			sr.Err = fmt.Errorf("all %d rotation jobs failed", sr.Failed)
		}
		return sr
	}

	if err := engine.Rewrite(ctx, updatedModel); err != nil {
		r.Logger.Error("Could not write %s back; dumping all credentials to stdout", src.Name)
		out := r.DumpOut
		if out == nil {
			out = os.Stdout
		}
		if derr := DumpModel(out, src.Name, engine.Path(), updatedModel); derr != nil {
			err = errors.Join(err, derr)
		}
		return fail(err)
	}

	r.Logger.Info("Wrote %d new password(s) to %s", sr.Succeeded, src.Name)
	sr.Status = StatusRotated
	if sr.Failed > 0 {
		sr.Status = StatusPartial
	}
	return sr
}

// record stores the secret-free outcome of a source.
func (r *Runner) record(runID string, src Source, sr SourceReport, d time.Duration) {
	if r.Storage == nil {
		return
	}

	entry := &storage.HistoryEntry{
		RunID:     runID,
		Timestamp: time.Now(),
		Source:    src.Name,
		Path:      src.Engine.Path(),
		DryRun:    r.DryRun,
		Status:    string(sr.Status),
		Duration:  d,
		Parsed:    sr.Parsed,
		Skipped:   sr.Skipped,
	}
	if sr.Err != nil {
		entry.Error = sr.Err.Error()
	}
	for _, res := range sr.Results {
		job := storage.JobRecord{
			Site:     res.Entry.Site,
			Username: res.Entry.Username,
			Script:   res.Job.Route.Script,
			Port:     res.Job.Port,
			Outcome:  string(res.Outcome),
			ExitCode: res.ExitCode,
			Duration: res.Duration,
		}
		if res.Err != nil {
			job.Error = logging.Redact(res.Err.Error(), []string{res.Job.Route.Entry.OldSecret, res.Job.Route.Entry.NewSecret})
		}
		entry.Jobs = append(entry.Jobs, job)
	}
	if err := r.Storage.SaveHistory(entry); err != nil {
		r.Logger.Warn("Could not record history for %s: %v", src.Name, err)
	}

	if r.DryRun {
		return
	}
	status := &storage.SourceStatus{
		Source:    src.Name,
		Status:    string(sr.Status),
		LastRun:   entry.Timestamp,
		LastRunID: runID,
		LastError: entry.Error,
		Rotated:   sr.Succeeded,
		Failed:    sr.Failed,
		RunCount:  1,
	}
	if prev, err := r.Storage.GetStatus(src.Name); err == nil {
		status.RunCount = prev.RunCount + 1
	}
	if err := r.Storage.SaveStatus(status); err != nil {
		r.Logger.Warn("Could not record status for %s: %v", src.Name, err)
	}
}

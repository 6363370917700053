package rotation

import (
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
	"strings"
	"sync"
	"time"

	dserrors "github.com/systmms/passup/internal/errors"
	"github.com/systmms/passup/internal/logging"
	pkgexec "github.com/systmms/passup/pkg/exec"
	"github.com/systmms/passup/pkg/store"
)

// Outcome classifies a finished job.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	// OutcomeFailed means the script ran and exited non-zero.
	OutcomeFailed Outcome = "failed"
	// OutcomeTimeout means the job exceeded the per-job timeout.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeSpawnError means the subprocess could not be started.
	OutcomeSpawnError Outcome = "spawn_error"
)

// Job is one submitted rotation.
type Job struct {
	Route Route
	Port  int
}

// Result is produced exactly once per submitted Job. Entry carries the new
// secret on success and the old one otherwise.
type Result struct {
	Job      Job
	Entry    store.Entry
	Outcome  Outcome
	ExitCode int
	Duration time.Duration
	// Output is the combined, redacted subprocess output.
	Output string
	Err    error
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Threads is the worker pool size; values below 1 mean 1.
	Threads int
	// JobTimeout bounds each subprocess; 0 means no limit.
	JobTimeout time.Duration
	// Binary is the automation executable, "nightwatch" when empty.
	Binary string
	// Browser is passed as --env and selects the default base port.
	Browser string
	// BasePort overrides the browser's default first port when non-zero.
	BasePort int
}

// Scheduler runs rotation jobs on a bounded worker pool.
type Scheduler struct {
	cfg      SchedulerConfig
	executor pkgexec.CommandExecutor
	logger   *logging.Logger
	metrics  *Metrics
	// newPorts builds the allocator for one batch.
	newPorts func(base int) *PortAllocator
}

// NewScheduler returns a scheduler. metrics may be nil.
func NewScheduler(cfg SchedulerConfig, executor pkgexec.CommandExecutor, logger *logging.Logger, metrics *Metrics) *Scheduler {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.Binary == "" {
		cfg.Binary = "nightwatch"
	}
	if cfg.BasePort == 0 {
		cfg.BasePort = BasePort(cfg.Browser)
	}
	return &Scheduler{
		cfg:      cfg,
		executor: executor,
		logger:   logger,
		metrics:  metrics,
		newPorts: NewPortAllocator,
	}
}

// Run submits one job per route and returns every result in completion
// order. It returns an error only when it could not submit all jobs; the
// results of submitted jobs are still returned and unsubmitted routes are
// reported as failed.
func (s *Scheduler) Run(ctx context.Context, source string, routes []Route) ([]Result, error) {
	if len(routes) == 0 {
		return nil, nil
	}

	jobs := make(chan Job)
	results := make(chan Result, len(routes))

	var wg sync.WaitGroup
	workers := min(s.cfg.Threads, len(routes))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				res := s.execute(ctx, job)
				s.metrics.RecordJob(source, res.Outcome, res.Duration)
				results <- res
			}
		}()
	}

	ports := s.newPorts(s.cfg.BasePort)
	ports.onSkip = func(port int) {
		s.logger.Debug("Port %d is busy, skipping", port)
		s.metrics.RecordPortSkipped()
	}

	submitted := 0
	var submitErr error
	for _, route := range routes {
		port, err := ports.Next()
		if err != nil {
			submitErr = err
			break
		}
		s.logger.Debug("Submitting %s to %s on port %d", route.Entry.Label(), route.Script, port)
		jobs <- Job{Route: route, Port: port}
		submitted++
	}
	close(jobs)

	out := make([]Result, 0, len(routes))
	for i := 0; i < submitted; i++ {
		out = append(out, <-results)
	}
	wg.Wait()

	for _, route := range routes[submitted:] {
		out = append(out, Result{
			Job:      Job{Route: route},
			Entry:    route.Entry.Reverted(),
			Outcome:  OutcomeSpawnError,
			ExitCode: -1,
			Err:      submitErr,
		})
	}
	if submitErr != nil {
		return out, fmt.Errorf("submitted %d of %d jobs: %w", submitted, len(routes), submitErr)
	}
	return out, nil
}

// execute runs the automation subprocess for one job.
func (s *Scheduler) execute(ctx context.Context, job Job) Result {
	entry := job.Route.Entry
	jctx := ctx
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	cmd := pkgexec.Command{
		Name: s.cfg.Binary,
		Args: []string{
			"--env", s.cfg.Browser,
			"--test", job.Route.Script,
			entry.Site, entry.Username, entry.OldSecret, entry.NewSecret,
		},
		Env: []string{fmt.Sprintf("PORT=%d", job.Port)},
	}

	start := time.Now()
	stdout, stderr, err := s.executor.Run(jctx, cmd)
	res := Result{
		Job:      job,
		Entry:    entry,
		Duration: time.Since(start),
		ExitCode: pkgexec.ExitCode(err),
		Output:   redactedOutput(stdout, stderr, entry),
	}

	switch {
	case err == nil:
		res.Outcome = OutcomeSuccess
		s.logger.Info("Rotated %s", entry.Label())
		return res
	case errors.Is(jctx.Err(), context.DeadlineExceeded):
		res.Outcome = OutcomeTimeout
		res.Err = fmt.Errorf("timed out after %s", s.cfg.JobTimeout)
	case ctx.Err() != nil:
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("run cancelled: %w", ctx.Err())
	case errors.Is(err, osexec.ErrNotFound):
		res.Outcome = OutcomeSpawnError
		res.Err = dserrors.WrapCommandNotFound(s.cfg.Binary, err)
	case res.ExitCode < 0:
		res.Outcome = OutcomeSpawnError
		res.Err = err
	default:
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("%s exited with status %d", s.cfg.Binary, res.ExitCode)
	}

	res.Entry = entry.Reverted()
	reason := logging.Redact(res.Err.Error(), []string{entry.OldSecret, entry.NewSecret})
	s.logger.Warn("Rotation of %s failed, keeping the old password: %s", entry.Label(), reason)
	if res.Output != "" {
		s.logger.Warn("Output of %s:\n%s", job.Route.Script, res.Output)
	}
	return res
}

// redactedOutput joins stdout and stderr with the job's secrets removed.
func redactedOutput(stdout, stderr []byte, entry store.Entry) string {
	out := strings.TrimSpace(strings.TrimSpace(string(stdout)) + "\n" + strings.TrimSpace(string(stderr)))
	return logging.Redact(out, []string{entry.OldSecret, entry.NewSecret})
}

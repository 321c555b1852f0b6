package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"scholarwatch/internal/types"
)

// Runner maps job names to jobs and wraps every run with history, metrics
// and logging. It never retries; the next scheduled run picks up whatever a
// failed run left behind.
type Runner struct {
	jobs    map[types.JobName]Job
	runs    RunRecorder
	metrics MetricsRecorder
	clock   types.Clock
	logger  *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunRecorder records each run in job history.
func WithRunRecorder(r RunRecorder) RunnerOption {
	return func(rn *Runner) { rn.runs = r }
}

// WithMetrics publishes run metrics.
func WithMetrics(m MetricsRecorder) RunnerOption {
	return func(rn *Runner) { rn.metrics = m }
}

// WithRunnerClock sets the clock used to time runs.
func WithRunnerClock(c types.Clock) RunnerOption {
	return func(rn *Runner) { rn.clock = c }
}

// NewRunner creates a Runner over jobs.
func NewRunner(jobs []Job, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		jobs:   make(map[types.JobName]Job, len(jobs)),
		clock:  types.RealClock{},
		logger: logger,
	}
	for _, j := range jobs {
		r.jobs[j.Name()] = j
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Jobs returns the registered job names in schedule order.
func (r *Runner) Jobs() []types.JobName {
	names := make([]types.JobName, 0, len(r.jobs))
	for _, name := range types.AllJobs {
		if _, ok := r.jobs[name]; ok {
			names = append(names, name)
		}
	}
	// Jobs outside the standard schedule sort after it.
	var extra []types.JobName
	for name := range r.jobs {
		if _, ok := types.JobSchedules[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(names, extra...)
}

// Has reports whether job is registered.
func (r *Runner) Has(job types.JobName) bool {
	_, ok := r.jobs[job]
	return ok
}

// Run executes job once with now as its reference time.
func (r *Runner) Run(ctx context.Context, job types.JobName, now time.Time) (types.JobResult, error) {
	j, ok := r.jobs[job]
	if !ok {
		return types.JobResult{Job: job}, types.NewAppError(types.ErrCodeNotFoundJob,
			fmt.Sprintf("unknown job %q", job), nil)
	}

	logger := r.logger.With("job", string(job))
	logger.InfoContext(ctx, "job started", "reference_time", now.Format(time.RFC3339))
	started := r.clock.Now()

	var runID int64
	if r.runs != nil {
		id, err := r.runs.Start(ctx, job, started)
		if err != nil {
			// History is for operators; a failure here does not block the run.
			logger.ErrorContext(ctx, "failed to start job run record", "error", err)
		} else {
			runID = id
		}
	}

	result, runErr := j.Run(ctx, now)
	result.Job = job
	if runErr != nil {
		result.Success = false
	}
	finished := r.clock.Now()
	duration := finished.Sub(started)

	if runID != 0 {
		if err := r.runs.Finish(ctx, runID, result, runErr, finished); err != nil {
			logger.ErrorContext(ctx, "failed to finish job run record",
				"run_id", runID,
				"error", err,
			)
		}
	}
	if r.metrics != nil {
		r.metrics.RecordJobRun(ctx, result, duration)
	}

	if runErr != nil {
		logger.ErrorContext(ctx, "job failed",
			"error", runErr,
			"duration_ms", duration.Milliseconds(),
		)
		return result, runErr
	}

	logger.InfoContext(ctx, "job complete",
		"created", result.CreatedCount,
		"sent", result.SentCount,
		"failures", len(result.Failures),
		"duration_ms", duration.Milliseconds(),
	)
	return result, nil
}

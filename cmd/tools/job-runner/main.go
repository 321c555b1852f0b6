// Package main implements the job-runner CLI tool for invoking detection
// jobs directly, bypassing both the HTTP trigger and the Lambda shim.
//
// This tool is intended for local development, manual backfilling, and
// operational debugging. It builds the same engine the API server uses, so
// every run is recorded in job history exactly like a scheduled one.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --list
//	go run ./cmd/tools/job-runner --job=deadline-alerts
//	go run ./cmd/tools/job-runner --job=at-risk --reference-time=2026-05-10T06:00:00Z
//	go run ./cmd/tools/job-runner --all
//	go run ./cmd/tools/job-runner --migrate
//	go run ./cmd/tools/job-runner --seed=testdata/fixture.json --all
//	go run ./cmd/tools/job-runner --history=deadline-alerts
//
// Configuration comes from the environment (or a .env file), as for the API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"scholarwatch/internal/config"
	"scholarwatch/internal/db/sqlite"
	"scholarwatch/internal/engine"
	"scholarwatch/internal/types"
)

// jobDescriptions documents each job for --list.
var jobDescriptions = map[types.JobName]string{
	types.JobDeadlineAlerts:          "Warn students 7 and 3 days before an application deadline",
	types.JobRecommendationReminders: "Remind students of recommendation letters still outstanding",
	types.JobGoalCompletion:          "Congratulate students on goals that reached their target",
	types.JobAtRisk:                  "Flag stalled or incomplete applications close to deadline",
}

const historyLimit = 20

type options struct {
	job      string
	refTime  *time.Time
	list     bool
	all      bool
	migrate  bool
	seedPath string
	history  string
	logLevel string
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if opts.list {
		printJobs(os.Stdout)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags turns the command line into options and checks that exactly one
// action was requested.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	var refTime string

	fs := flag.NewFlagSet("job-runner", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.job, "job", "", "Job to execute (e.g., deadline-alerts)")
	fs.StringVar(&refTime, "reference-time", "", "Override reference time (RFC3339, e.g., 2026-05-10T06:00:00Z)")
	fs.BoolVar(&opts.list, "list", false, "List all jobs and their schedules and exit")
	fs.BoolVar(&opts.all, "all", false, "Run every job once, in schedule order")
	fs.BoolVar(&opts.migrate, "migrate", false, "Apply pending PostgreSQL migrations")
	fs.StringVar(&opts.seedPath, "seed", "", "Load a JSON fixture into the SQLite database before running")
	fs.StringVar(&opts.history, "history", "", "Print recent runs of the named job")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(stderr, "Run scholarwatch detection jobs directly.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nUse --list to see all jobs.\n")
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if refTime != "" {
		t, err := time.Parse(time.RFC3339, refTime)
		if err != nil {
			return opts, fmt.Errorf("invalid --reference-time %q (expected RFC3339): %w", refTime, err)
		}
		t = t.UTC()
		opts.refTime = &t
	}

	if opts.job != "" {
		if _, err := types.ParseJobName(opts.job); err != nil {
			return opts, err
		}
	}
	if opts.history != "" {
		if _, err := types.ParseJobName(opts.history); err != nil {
			return opts, err
		}
	}

	if opts.job != "" && opts.all {
		return opts, fmt.Errorf("--job and --all are mutually exclusive")
	}
	if !opts.list && !opts.all && !opts.migrate && opts.job == "" && opts.seedPath == "" && opts.history == "" {
		fs.Usage()
		return opts, fmt.Errorf("nothing to do: pass --job, --all, --migrate, --seed, --history or --list")
	}
	return opts, nil
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(opts.logLevel)}))

	var engineOpts []engine.Option
	if opts.refTime != nil {
		engineOpts = append(engineOpts, engine.WithClock(types.FixedClock{T: *opts.refTime}))
	}

	eng, err := engine.New(ctx, cfg, logger, engineOpts...)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer eng.Close()

	if opts.migrate {
		applied, err := eng.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		logger.Info("migrations applied", "count", applied)
	}

	if opts.seedPath != "" {
		fixture, err := readFixture(opts.seedPath)
		if err != nil {
			return err
		}
		if err := eng.Seed(ctx, fixture); err != nil {
			return fmt.Errorf("seeding: %w", err)
		}
		logger.Info("fixture loaded", "path", opts.seedPath)
	}

	now := time.Now().UTC()
	if opts.refTime != nil {
		now = *opts.refTime
	}

	var jobs []types.JobName
	switch {
	case opts.all:
		jobs = types.AllJobs
	case opts.job != "":
		jobs = []types.JobName{types.JobName(opts.job)}
	}

	failed := 0
	for _, job := range jobs {
		jobCtx, cancel := context.WithTimeout(ctx, cfg.Jobs.Timeout)
		result, err := eng.Runner.Run(jobCtx, job, now)
		cancel()
		if err != nil {
			logger.Error("job failed", "job", string(job), "error", err)
			failed++
			continue
		}
		logger.Info("job finished",
			"job", string(job),
			"success", result.Success,
			"created", result.CreatedCount,
			"sent", result.SentCount,
			"failures", len(result.Failures),
		)
	}

	if opts.history != "" {
		runs, err := eng.History.Recent(ctx, types.JobName(opts.history), historyLimit)
		if err != nil {
			return fmt.Errorf("reading job history: %w", err)
		}
		printHistory(os.Stdout, runs)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(jobs))
	}
	return nil
}

func readFixture(path string) (sqlite.Fixture, error) {
	var f sqlite.Fixture
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("reading fixture: %w", err)
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	return f, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printJobs lists every job with its schedule, in schedule order.
func printJobs(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSCHEDULE\tDESCRIPTION")
	for _, j := range types.AllJobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", j, types.JobSchedules[j], jobDescriptions[j])
	}
	tw.Flush()
}

func printHistory(w io.Writer, runs []types.JobRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tCREATED\tSENT\tFAILURES\tERROR")
	for _, r := range runs {
		errText := ""
		if r.Error != nil {
			errText = *r.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Status,
			r.CreatedCount, r.SentCount, r.FailureCount, errText)
	}
	tw.Flush()
}

// Package main is the entrypoint for the scheduler Lambda function.
//
// EventBridge rules fire once per job schedule (see types.JobSchedules) and
// send a TriggerPayload naming the job. The handler runs that job through the
// shared Runner, which records job history and publishes metrics.
//
// Handler flow:
//  1. Parse TriggerPayload and determine the reference time.
//  2. Reject unknown jobs before touching the database.
//  3. Run the job under the configured timeout.
//  4. Return the JobResult so the invocation log carries the counts.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"scholarwatch/internal/config"
	"scholarwatch/internal/engine"
	"scholarwatch/internal/scheduler"
	"scholarwatch/internal/types"
)

// JobRunner is the subset of scheduler.Runner the handler calls.
type JobRunner interface {
	Has(job types.JobName) bool
	Run(ctx context.Context, job types.JobName, now time.Time) (types.JobResult, error)
}

// Handler holds the dependencies for the scheduler Lambda handler function.
type Handler struct {
	Runner  JobRunner
	Timeout time.Duration
	Clock   types.Clock
	Logger  *slog.Logger
}

// Handle runs the job named in the payload once.
func (h *Handler) Handle(ctx context.Context, payload scheduler.TriggerPayload) (types.JobResult, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := h.Clock
	if clock == nil {
		clock = types.RealClock{}
	}

	now := payload.Now(clock.Now())
	logger.InfoContext(ctx, "scheduler handler invoked",
		"job", string(payload.Job),
		"reference_time", now.Format(time.RFC3339),
	)

	if payload.Job == "" {
		return types.JobResult{}, fmt.Errorf("empty job name in trigger payload")
	}
	if !h.Runner.Has(payload.Job) {
		return types.JobResult{}, fmt.Errorf("unknown job: %q", payload.Job)
	}

	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	result, err := h.Runner.Run(ctx, payload.Job, now)
	if err != nil {
		return result, fmt.Errorf("job %s failed: %w", payload.Job, err)
	}
	return result, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("Scheduler Lambda initializing (cold start)")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	eng, err := engine.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to build engine", "error", err)
		os.Exit(1)
	}

	handler := &Handler{
		Runner:  eng.Runner,
		Timeout: cfg.Jobs.Timeout,
		Logger:  logger,
	}

	logger.Info("Scheduler Lambda initialized",
		"jobs", eng.Runner.Jobs(),
		"version", cfg.Build.String(),
	)

	lambda.Start(handler.Handle)
}

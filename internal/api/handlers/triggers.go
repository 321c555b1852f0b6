package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"scholarwatch/internal/auth"
	"scholarwatch/internal/core"
	"scholarwatch/internal/types"
)

// JobRunner executes detection jobs by name.
type JobRunner interface {
	Has(job types.JobName) bool
	Run(ctx context.Context, job types.JobName, now time.Time) (types.JobResult, error)
}

// triggerResponse is the body returned to the external scheduler.
type triggerResponse struct {
	Success      bool                `json:"success"`
	CreatedCount int                 `json:"createdCount"`
	SentCount    int                 `json:"sentCount"`
	Failures     []types.EntityError `json:"failures"`
}

type triggerError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// TriggerHandler lets an external cron service start a job over HTTP.
type TriggerHandler struct {
	runner  JobRunner
	secret  types.SecretString
	timeout time.Duration
	clock   types.Clock
	logger  *slog.Logger
}

// NewTriggerHandler creates a TriggerHandler. timeout bounds each run
// independently of the caller's connection.
func NewTriggerHandler(runner JobRunner, secret types.SecretString, timeout time.Duration, clock types.Clock, l *slog.Logger) *TriggerHandler {
	if l == nil {
		l = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &TriggerHandler{
		runner:  runner,
		secret:  secret,
		timeout: timeout,
		clock:   clock,
		logger:  l,
	}
}

// RegisterRoutes mounts the trigger under /internal/jobs.
func (h *TriggerHandler) RegisterRoutes(r chi.Router) {
	r.Route("/internal/jobs", func(r chi.Router) {
		r.Get("/{job}", h.Trigger)
		r.Post("/{job}", h.Trigger)
	})
}

// Trigger runs the named job once and reports its counts.
func (h *TriggerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		core.JSON(w, r, http.StatusUnauthorized, triggerError{Error: "unauthorized"})
		return
	}

	job := types.JobName(chi.URLParam(r, "job"))
	if !h.runner.Has(job) {
		core.JSON(w, r, http.StatusNotFound, triggerError{Error: "unknown job"})
		return
	}

	logger := types.LoggerFromContext(r.Context(), h.logger)

	// A scheduler that hangs up must not abort a half-finished scan.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	result, err := h.runner.Run(ctx, job, h.clock.Now())
	if err != nil {
		logger.ErrorContext(ctx, "triggered job failed", "job", string(job), "error", err)
		core.JSON(w, r, http.StatusInternalServerError, triggerError{Error: failureCategory(err)})
		return
	}

	failures := result.Failures
	if failures == nil {
		failures = []types.EntityError{}
	}
	core.JSON(w, r, http.StatusOK, triggerResponse{
		Success:      result.Success,
		CreatedCount: result.CreatedCount,
		SentCount:    result.SentCount,
		Failures:     failures,
	})
}

func (h *TriggerHandler) authorized(r *http.Request) bool {
	if h.secret.Empty() {
		return false
	}
	presented := auth.BearerToken(r.Header.Get("Authorization"))
	return subtle.ConstantTimeCompare([]byte(presented), h.secret.Bytes()) == 1
}

// failureCategory reduces a run error to a string safe to return to the
// caller.
func failureCategory(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case types.IsCode(err, types.ErrCodeInternalScopeRead):
		return "scope_read_failed"
	default:
		return "internal_error"
	}
}

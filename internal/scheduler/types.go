// Package scheduler runs the detection jobs. Each job is a Pipeline over one
// Detector: the detector selects and evaluates entities, the pipeline turns
// positive evaluations into alerts and notifications. The Runner maps job
// names to pipelines and records every run.
//
// The same Runner serves the HTTP trigger, the scheduled Lambda and the
// job-runner CLI.
package scheduler

import (
	"context"
	"time"

	"scholarwatch/internal/alerts"
	"scholarwatch/internal/types"
)

// TriggerPayload is the JSON payload EventBridge sends to the scheduler
// Lambda:
//
//	{
//	  "job": "deadline-alerts",
//	  "reference_time": "2026-05-10T06:00:00Z"  // optional
//	}
type TriggerPayload struct {
	Job types.JobName `json:"job"`
	// ReferenceTime overrides "now" for manual invocation and backfills.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// Now returns the reference time, or fallback when none was given.
func (p TriggerPayload) Now(fallback time.Time) time.Time {
	if p.ReferenceTime != nil {
		return p.ReferenceTime.UTC()
	}
	return fallback.UTC()
}

// ScopeReader is the read-only view of application data the detectors scan.
// Both the PostgreSQL ScopeRepository and the SQLite store implement it.
type ScopeReader interface {
	ApplicationsDueBetween(ctx context.Context, from, to time.Time) ([]types.ApplicationSnapshot, error)
	RecommendationsDueBetween(ctx context.Context, from, to time.Time) ([]types.RecommendationSnapshot, error)
	ActiveGoals(ctx context.Context) ([]types.GoalSnapshot, error)
}

// AlertService is the subset of alerts.Service the pipeline drives.
type AlertService interface {
	FindActive(ctx context.Context, subjectKey string, kind types.AlertKind) (*types.Alert, error)
	HasAlerted(ctx context.Context, subjectKey string, kind types.AlertKind, causeKey string) (bool, error)
	Create(ctx context.Context, in alerts.CreateInput) (*types.Alert, error)
	MarkSent(ctx context.Context, alertID string) error
}

// TokenIssuer signs action tokens.
type TokenIssuer interface {
	Issue(alertID string, action types.AlertAction, ttl time.Duration) (string, error)
}

// LinkBuilder turns a signed token into the URL placed in a notification.
type LinkBuilder interface {
	ActionURL(action types.AlertAction, token string) string
}

// Dispatcher hands a notification to a transport.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg types.NotificationMessage) error
}

// RunRecorder persists job run history.
type RunRecorder interface {
	Start(ctx context.Context, job types.JobName, startedAt time.Time) (int64, error)
	Finish(ctx context.Context, id int64, result types.JobResult, jobErr error, finishedAt time.Time) error
}

// MetricsRecorder publishes job run metrics. Implementations must not fail
// the run.
type MetricsRecorder interface {
	RecordJobRun(ctx context.Context, result types.JobResult, duration time.Duration)
}

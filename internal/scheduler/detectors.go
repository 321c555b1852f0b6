package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"scholarwatch/internal/types"
)

// sortedDays returns a sorted copy, tightest window first.
func sortedDays(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	return out
}

// tightestWindow returns the smallest window in ascending that remaining
// falls within.
func tightestWindow(ascending []int, remaining time.Duration) (int, bool) {
	if remaining <= 0 {
		return 0, false
	}
	for _, n := range ascending {
		if remaining <= days(n) {
			return n, true
		}
	}
	return 0, false
}

// ============================================================
// Deadline
// ============================================================

// DeadlineDetector alerts on applications approaching their deadline. Only
// the tightest threshold crossed fires.
type DeadlineDetector struct {
	scope      ScopeReader
	thresholds []int
}

// NewDeadlineDetector creates a detector for the given thresholds in days.
// Every threshold must have a matching deadline alert kind.
func NewDeadlineDetector(scope ScopeReader, thresholds []int) (*DeadlineDetector, error) {
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("deadline detector needs at least one threshold")
	}
	for _, n := range thresholds {
		if _, err := types.DeadlineKind(n); err != nil {
			return nil, err
		}
	}
	return &DeadlineDetector{scope: scope, thresholds: sortedDays(thresholds)}, nil
}

func (d *DeadlineDetector) Name() types.JobName { return types.JobDeadlineAlerts }

func (d *DeadlineDetector) Scope(ctx context.Context, now time.Time) ([]types.ApplicationSnapshot, error) {
	widest := d.thresholds[len(d.thresholds)-1]
	return d.scope.ApplicationsDueBetween(ctx, now, now.Add(days(widest)))
}

func (d *DeadlineDetector) Evaluate(app types.ApplicationSnapshot, now time.Time) (Candidate, bool) {
	if app.Status.Terminal() {
		return Candidate{}, false
	}
	n, ok := tightestWindow(d.thresholds, app.Deadline.Sub(now))
	if !ok {
		return Candidate{}, false
	}
	kind, err := types.DeadlineKind(n)
	if err != nil {
		return Candidate{}, false
	}

	payload := applicationPayload(app, now)
	payload["threshold_days"] = n
	return Candidate{
		StudentID:     app.StudentID,
		ApplicationID: strPtr(app.ApplicationID),
		Kind:          kind,
		CauseKey:      fmt.Sprintf("deadline:%dd:%s", n, app.Deadline.UTC().Format("2006-01-02")),
		Recipient:     applicationRecipient(app),
		Payload:       payload,
		Actions:       defaultActions,
	}, true
}

func (d *DeadlineDetector) EntityID(app types.ApplicationSnapshot) string { return app.ApplicationID }

// ============================================================
// Recommendation reminders
// ============================================================

// RecommendationDetector reminds students of recommendation letters still
// outstanding close to the deadline. Each window sends at most once.
type RecommendationDetector struct {
	scope   ScopeReader
	windows []int
}

// NewRecommendationDetector creates a detector for the given windows in days.
func NewRecommendationDetector(scope ScopeReader, windows []int) (*RecommendationDetector, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("recommendation detector needs at least one window")
	}
	return &RecommendationDetector{scope: scope, windows: sortedDays(windows)}, nil
}

func (d *RecommendationDetector) Name() types.JobName { return types.JobRecommendationReminders }

func (d *RecommendationDetector) Scope(ctx context.Context, now time.Time) ([]types.RecommendationSnapshot, error) {
	widest := d.windows[len(d.windows)-1]
	return d.scope.RecommendationsDueBetween(ctx, now, now.Add(days(widest)))
}

func (d *RecommendationDetector) Evaluate(rec types.RecommendationSnapshot, now time.Time) (Candidate, bool) {
	if rec.OutstandingRecommendations == 0 || rec.Status.Terminal() {
		return Candidate{}, false
	}
	n, ok := tightestWindow(d.windows, rec.Deadline.Sub(now))
	if !ok {
		return Candidate{}, false
	}
	windowStart := rec.Deadline.Add(-days(n))

	payload := applicationPayload(rec.ApplicationSnapshot, now)
	payload["outstanding_recommendations"] = rec.OutstandingRecommendations
	payload["recommenders"] = rec.RecommenderNames
	return Candidate{
		StudentID:     rec.StudentID,
		ApplicationID: strPtr(rec.ApplicationID),
		Kind:          types.KindRecommendationReminder,
		CauseKey:      fmt.Sprintf("recommendation:%dd", n),
		Recipient:     applicationRecipient(rec.ApplicationSnapshot),
		Payload:       payload,
		Actions:       []types.AlertAction{types.ActionSnooze, types.ActionDismiss, types.ActionUpload},
		ResendAfter:   &windowStart,
	}, true
}

func (d *RecommendationDetector) EntityID(rec types.RecommendationSnapshot) string {
	return rec.ApplicationID
}

// ============================================================
// Goal completion
// ============================================================

// GoalDetector congratulates students whose secured funding reached their
// goal. A goal alerts once per target amount.
type GoalDetector struct {
	scope ScopeReader
}

func NewGoalDetector(scope ScopeReader) *GoalDetector {
	return &GoalDetector{scope: scope}
}

func (d *GoalDetector) Name() types.JobName { return types.JobGoalCompletion }

func (d *GoalDetector) Scope(ctx context.Context, _ time.Time) ([]types.GoalSnapshot, error) {
	return d.scope.ActiveGoals(ctx)
}

func (d *GoalDetector) Evaluate(g types.GoalSnapshot, _ time.Time) (Candidate, bool) {
	if !g.Reached() {
		return Candidate{}, false
	}
	return Candidate{
		StudentID: g.StudentID,
		Kind:      types.KindGoalCompletion,
		CauseKey:  fmt.Sprintf("goal:%s:%s", g.GoalID, g.TargetAmount.String()),
		Recipient: types.Recipient{StudentID: g.StudentID, Email: g.StudentEmail, Name: g.StudentName},
		Payload: map[string]interface{}{
			"student_name":   g.StudentName,
			"goal_id":        g.GoalID,
			"target_amount":  g.TargetAmount.StringFixed(2),
			"secured_amount": g.SecuredAmount.StringFixed(2),
		},
		Actions: defaultActions,
	}, true
}

func (d *GoalDetector) EntityID(g types.GoalSnapshot) string { return g.GoalID }

// ============================================================
// At-risk
// ============================================================

// RiskPolicy holds the at-risk thresholds.
type RiskPolicy struct {
	// Horizon bounds how far ahead a deadline is considered at all.
	Horizon time.Duration
	// UrgentWithin is how close a deadline must be for not-started and
	// missing-recommendations to apply.
	UrgentWithin time.Duration
	// StaleAfter is the inactivity span that counts as stalled.
	StaleAfter time.Duration
}

// EvaluateRisk classifies an application. Reasons are checked in order:
// not-started, missing-recommendations, stalled. An application with no
// recorded activity is never stalled.
func EvaluateRisk(app types.ApplicationSnapshot, now time.Time, p RiskPolicy) (types.RiskReason, bool) {
	if app.Status.Terminal() {
		return "", false
	}
	remaining := app.Deadline.Sub(now)
	if remaining <= 0 || remaining > p.Horizon {
		return "", false
	}
	urgent := remaining <= p.UrgentWithin

	switch {
	case urgent && app.Status == types.ApplicationDraft:
		return types.RiskNotStarted, true
	case urgent && app.OutstandingRecommendations > 0:
		return types.RiskMissingRecommendations, true
	case app.LastActivityAt != nil && now.Sub(*app.LastActivityAt) >= p.StaleAfter:
		return types.RiskStalled, true
	default:
		return "", false
	}
}

// AtRiskDetector flags applications likely to miss their deadline.
type AtRiskDetector struct {
	scope  ScopeReader
	policy RiskPolicy
}

func NewAtRiskDetector(scope ScopeReader, policy RiskPolicy) *AtRiskDetector {
	return &AtRiskDetector{scope: scope, policy: policy}
}

func (d *AtRiskDetector) Name() types.JobName { return types.JobAtRisk }

func (d *AtRiskDetector) Scope(ctx context.Context, now time.Time) ([]types.ApplicationSnapshot, error) {
	return d.scope.ApplicationsDueBetween(ctx, now, now.Add(d.policy.Horizon))
}

func (d *AtRiskDetector) Evaluate(app types.ApplicationSnapshot, now time.Time) (Candidate, bool) {
	reason, ok := EvaluateRisk(app, now, d.policy)
	if !ok {
		return Candidate{}, false
	}
	payload := applicationPayload(app, now)
	payload["risk_reason"] = string(reason)
	return Candidate{
		StudentID:     app.StudentID,
		ApplicationID: strPtr(app.ApplicationID),
		Kind:          types.KindAtRisk,
		CauseKey:      "risk:" + string(reason),
		Recipient:     applicationRecipient(app),
		Payload:       payload,
		Actions:       defaultActions,
	}, true
}

func (d *AtRiskDetector) EntityID(app types.ApplicationSnapshot) string { return app.ApplicationID }

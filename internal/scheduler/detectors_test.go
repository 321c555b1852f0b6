package scheduler

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholarwatch/internal/types"
)

var now = time.Date(2026, 5, 10, 6, 0, 0, 0, time.UTC)

func app(id string, deadlineIn time.Duration) types.ApplicationSnapshot {
	return types.ApplicationSnapshot{
		ApplicationID:   id,
		StudentID:       "student-" + id,
		StudentEmail:    id + "@example.edu",
		StudentName:     "Student " + id,
		Status:          types.ApplicationInProgress,
		ScholarshipID:   "sch-" + id,
		ScholarshipName: "Scholarship " + id,
		Amount:          decimal.RequireFromString("1500"),
		Deadline:        now.Add(deadlineIn),
	}
}

func TestDeadlineDetector_TightestThresholdOnly(t *testing.T) {
	d, err := NewDeadlineDetector(nil, []int{7, 3})
	require.NoError(t, err)

	tests := []struct {
		name     string
		in       time.Duration
		wantKind types.AlertKind
		wantOK   bool
	}{
		{"three days out", 72 * time.Hour, types.KindDeadline3Day, true},
		{"just inside seven", 7*24*time.Hour - time.Minute, types.KindDeadline7Day, true},
		{"exactly seven", 7 * 24 * time.Hour, types.KindDeadline7Day, true},
		{"four days out", 4 * 24 * time.Hour, types.KindDeadline7Day, true},
		{"two hours out", 2 * time.Hour, types.KindDeadline3Day, true},
		{"eight days out", 8 * 24 * time.Hour, "", false},
		{"already passed", -time.Hour, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := d.Evaluate(app("a1", tt.in), now)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantKind, c.Kind)
			}
		})
	}
}

func TestDeadlineDetector_CandidateFields(t *testing.T) {
	d, err := NewDeadlineDetector(nil, []int{3, 7})
	require.NoError(t, err)

	c, ok := d.Evaluate(app("a1", 60*time.Hour), now)
	require.True(t, ok)
	assert.Equal(t, "deadline:3d:2026-05-12", c.CauseKey)
	assert.Equal(t, "application:a1", c.SubjectKey())
	assert.Equal(t, []types.AlertAction{types.ActionSnooze, types.ActionDismiss}, c.Actions)
	assert.Equal(t, "a1@example.edu", c.Recipient.Email)
	assert.Equal(t, "1500.00", c.Payload["amount"])
	assert.Equal(t, 3, c.Payload["days_remaining"])
	assert.Nil(t, c.ResendAfter)
}

func TestDeadlineDetector_SkipsTerminal(t *testing.T) {
	d, err := NewDeadlineDetector(nil, []int{7, 3})
	require.NoError(t, err)

	for _, status := range types.TerminalApplicationStatuses {
		a := app("a1", 48*time.Hour)
		a.Status = status
		_, ok := d.Evaluate(a, now)
		assert.False(t, ok, status)
	}
}

func TestNewDeadlineDetector_RejectsUnknownThreshold(t *testing.T) {
	_, err := NewDeadlineDetector(nil, []int{7, 5})
	assert.Equal(t, types.ErrCodeValidationUnknownKind, types.CodeOf(err))

	_, err = NewDeadlineDetector(nil, nil)
	assert.Error(t, err)
}

func TestRecommendationDetector_Windows(t *testing.T) {
	d, err := NewRecommendationDetector(nil, []int{7, 3})
	require.NoError(t, err)

	rec := types.RecommendationSnapshot{
		ApplicationSnapshot: app("a1", 6*24*time.Hour),
		RecommenderNames:    []string{"Dr. Lee"},
	}
	rec.OutstandingRecommendations = 1

	c, ok := d.Evaluate(rec, now)
	require.True(t, ok)
	assert.Equal(t, types.KindRecommendationReminder, c.Kind)
	assert.Equal(t, "recommendation:7d", c.CauseKey)
	require.NotNil(t, c.ResendAfter)
	assert.Equal(t, rec.Deadline.Add(-7*24*time.Hour), *c.ResendAfter)
	assert.Contains(t, c.Actions, types.ActionUpload)

	rec.Deadline = now.Add(2 * 24 * time.Hour)
	c, ok = d.Evaluate(rec, now)
	require.True(t, ok)
	assert.Equal(t, "recommendation:3d", c.CauseKey)
	assert.Equal(t, rec.Deadline.Add(-3*24*time.Hour), *c.ResendAfter)

	rec.OutstandingRecommendations = 0
	_, ok = d.Evaluate(rec, now)
	assert.False(t, ok)
}

func TestGoalDetector(t *testing.T) {
	d := NewGoalDetector(nil)
	g := types.GoalSnapshot{
		GoalID:        "goal-1",
		StudentID:     "student-1",
		StudentEmail:  "ana@example.edu",
		TargetAmount:  decimal.RequireFromString("5000"),
		SecuredAmount: decimal.RequireFromString("4999.99"),
	}

	_, ok := d.Evaluate(g, now)
	assert.False(t, ok)

	g.SecuredAmount = decimal.RequireFromString("5000.00")
	c, ok := d.Evaluate(g, now)
	require.True(t, ok)
	assert.Nil(t, c.ApplicationID)
	assert.Equal(t, "student:student-1", c.SubjectKey())
	assert.Equal(t, "goal:goal-1:5000", c.CauseKey)

	g.TargetAmount = decimal.RequireFromString("4000")
	c, ok = d.Evaluate(g, now)
	require.True(t, ok)
	assert.Equal(t, "goal:goal-1:4000", c.CauseKey)
}

func TestEvaluateRisk(t *testing.T) {
	policy := RiskPolicy{
		Horizon:      14 * 24 * time.Hour,
		UrgentWithin: 5 * 24 * time.Hour,
		StaleAfter:   7 * 24 * time.Hour,
	}
	stale := now.Add(-8 * 24 * time.Hour)
	fresh := now.Add(-24 * time.Hour)

	tests := []struct {
		name   string
		mutate func(*types.ApplicationSnapshot)
		in     time.Duration
		want   types.RiskReason
		wantOK bool
	}{
		{"draft close to deadline", func(a *types.ApplicationSnapshot) { a.Status = types.ApplicationDraft }, 4 * 24 * time.Hour, types.RiskNotStarted, true},
		{"draft far from deadline", func(a *types.ApplicationSnapshot) { a.Status = types.ApplicationDraft }, 10 * 24 * time.Hour, "", false},
		{"missing recommendations", func(a *types.ApplicationSnapshot) { a.OutstandingRecommendations = 2 }, 3 * 24 * time.Hour, types.RiskMissingRecommendations, true},
		{"draft wins over missing recommendations", func(a *types.ApplicationSnapshot) {
			a.Status = types.ApplicationDraft
			a.OutstandingRecommendations = 2
		}, 3 * 24 * time.Hour, types.RiskNotStarted, true},
		{"stalled", func(a *types.ApplicationSnapshot) { a.LastActivityAt = &stale }, 12 * 24 * time.Hour, types.RiskStalled, true},
		{"recent activity", func(a *types.ApplicationSnapshot) { a.LastActivityAt = &fresh }, 12 * 24 * time.Hour, "", false},
		{"no activity recorded", func(a *types.ApplicationSnapshot) {}, 12 * 24 * time.Hour, "", false},
		{"beyond horizon", func(a *types.ApplicationSnapshot) { a.LastActivityAt = &stale }, 20 * 24 * time.Hour, "", false},
		{"submitted", func(a *types.ApplicationSnapshot) {
			a.Status = types.ApplicationSubmitted
			a.LastActivityAt = &stale
		}, 3 * 24 * time.Hour, "", false},
		{"past deadline", func(a *types.ApplicationSnapshot) { a.Status = types.ApplicationDraft }, -time.Hour, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := app("a1", tt.in)
			tt.mutate(&a)
			reason, ok := EvaluateRisk(a, now, policy)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, reason)
		})
	}
}

func TestDaysUntil(t *testing.T) {
	assert.Equal(t, 3, daysUntil(now.Add(72*time.Hour), now))
	assert.Equal(t, 3, daysUntil(now.Add(60*time.Hour), now))
	assert.Equal(t, 1, daysUntil(now.Add(time.Minute), now))
	assert.Equal(t, 0, daysUntil(now.Add(-time.Minute), now))
}

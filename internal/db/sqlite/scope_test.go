package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholarwatch/internal/types"
)

func seedBasic(t *testing.T, s *Store) {
	t.Helper()
	stale := t0.Add(-10 * 24 * time.Hour)
	require.NoError(t, s.Seed(context.Background(), Fixture{
		Students: []StudentFixture{
			{ID: "student-1", Email: "ana@example.edu", Name: "Ana"},
			{ID: "student-2", Email: "ben@example.edu", Name: "Ben"},
		},
		Scholarships: []ScholarshipFixture{
			{ID: "sch-1", Name: "Gates Scholarship", Amount: decimal.RequireFromString("2500.50"), Deadline: t0.Add(72 * time.Hour)},
			{ID: "sch-2", Name: "Local Rotary", Amount: decimal.RequireFromString("3000"), Deadline: t0.Add(6 * 24 * time.Hour)},
			{ID: "sch-3", Name: "Past Award", Amount: decimal.RequireFromString("2000"), Deadline: t0.Add(-24 * time.Hour)},
			{ID: "sch-4", Name: "Far Future", Amount: decimal.RequireFromString("100"), Deadline: t0.Add(60 * 24 * time.Hour)},
		},
		Applications: []ApplicationFixture{
			{ID: "app-1", StudentID: "student-1", ScholarshipID: "sch-1", Status: "in_progress", LastActivityAt: &stale},
			{ID: "app-2", StudentID: "student-1", ScholarshipID: "sch-2", Status: "submitted"},
			{ID: "app-3", StudentID: "student-2", ScholarshipID: "sch-2", Status: "draft"},
			{ID: "app-4", StudentID: "student-2", ScholarshipID: "sch-3", Status: "awarded"},
			{ID: "app-5", StudentID: "student-2", ScholarshipID: "sch-4", Status: "awarded"},
		},
		Recommendations: []RecommendationFixture{
			{ID: "rr-1", ApplicationID: "app-1", Recommender: "Ms. Park", Status: "requested"},
			{ID: "rr-2", ApplicationID: "app-1", Recommender: "Dr. Lee", Status: "requested"},
			{ID: "rr-3", ApplicationID: "app-3", Recommender: "Mr. Ode", Status: "received"},
		},
		Goals: []GoalFixture{
			{ID: "goal-1", StudentID: "student-2", TargetAmount: decimal.RequireFromString("2100"), Active: true, UpdatedAt: t0},
			{ID: "goal-2", StudentID: "student-1", TargetAmount: decimal.RequireFromString("1000"), Active: false, UpdatedAt: t0},
		},
	}))
}

func TestStore_ApplicationsDueBetween(t *testing.T) {
	s := newTestStore(t)
	seedBasic(t, s)

	apps, err := s.ApplicationsDueBetween(context.Background(), t0, t0.Add(7*24*time.Hour))
	require.NoError(t, err)

	// app-2 is submitted, app-4 is past due, app-5 is outside the window.
	require.Len(t, apps, 2)
	assert.Equal(t, "app-1", apps[0].ApplicationID)
	assert.Equal(t, "ana@example.edu", apps[0].StudentEmail)
	assert.Equal(t, 2, apps[0].OutstandingRecommendations)
	require.NotNil(t, apps[0].LastActivityAt)
	assert.Equal(t, t0.Add(72*time.Hour), apps[0].Deadline)

	assert.Equal(t, "app-3", apps[1].ApplicationID)
	assert.Equal(t, types.ApplicationDraft, apps[1].Status)
	assert.Equal(t, 0, apps[1].OutstandingRecommendations)
	assert.Nil(t, apps[1].LastActivityAt)
}

func TestStore_ApplicationsDueBetween_BoundaryInclusive(t *testing.T) {
	s := newTestStore(t)
	seedBasic(t, s)

	apps, err := s.ApplicationsDueBetween(context.Background(), t0, t0.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "app-1", apps[0].ApplicationID)

	apps, err = s.ApplicationsDueBetween(context.Background(), t0.Add(72*time.Hour), t0.Add(80*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestStore_RecommendationsDueBetween(t *testing.T) {
	s := newTestStore(t)
	seedBasic(t, s)

	recs, err := s.RecommendationsDueBetween(context.Background(), t0, t0.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "app-1", recs[0].ApplicationID)
	assert.Equal(t, []string{"Dr. Lee", "Ms. Park"}, recs[0].RecommenderNames)
}

func TestStore_ActiveGoals(t *testing.T) {
	s := newTestStore(t)
	seedBasic(t, s)

	goals, err := s.ActiveGoals(context.Background())
	require.NoError(t, err)
	require.Len(t, goals, 1)

	g := goals[0]
	assert.Equal(t, "goal-1", g.GoalID)
	assert.True(t, decimal.RequireFromString("2100").Equal(g.SecuredAmount))
	assert.True(t, g.Reached())
}

func TestJobRuns_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runs := s.JobRuns()

	id, err := runs.Start(ctx, types.JobDeadlineAlerts, t0)
	require.NoError(t, err)

	result := types.JobResult{
		Job: types.JobDeadlineAlerts, Success: true, CreatedCount: 3, SentCount: 2,
		Failures: []types.EntityError{{EntityID: "app-9", Code: types.ErrCodeUpstreamDispatch}},
	}
	require.NoError(t, runs.Finish(ctx, id, result, nil, t0.Add(time.Second)))

	recent, err := runs.Recent(ctx, types.JobDeadlineAlerts, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, types.JobRunSucceeded, recent[0].Status)
	assert.Equal(t, 3, recent[0].CreatedCount)
	assert.Equal(t, 2, recent[0].SentCount)
	assert.Equal(t, 1, recent[0].FailureCount)
	require.NotNil(t, recent[0].FinishedAt)
	assert.Equal(t, t0.Add(time.Second), *recent[0].FinishedAt)

	err = runs.Finish(ctx, id+100, result, nil, t0)
	assert.Equal(t, types.ErrCodeInternalUnexpected, types.CodeOf(err))
}

func TestStore_ScholarshipName(t *testing.T) {
	s := newTestStore(t)
	seedBasic(t, s)

	name, err := s.ScholarshipName(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "Gates Scholarship", name)

	name, err = s.ScholarshipName(context.Background(), "app-missing")
	require.NoError(t, err)
	assert.Empty(t, name)
}

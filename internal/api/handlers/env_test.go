package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"scholarwatch/internal/actiontoken"
	"scholarwatch/internal/alerts"
	"scholarwatch/internal/db/sqlite"
	"scholarwatch/internal/types"
)

const (
	testActionSecret = types.SecretString("handlers-test-action-secret-of-32-bytes")
	testAppBaseURL   = "https://app.example.test"
)

var t0 = time.Date(2026, 5, 10, 6, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

// alertEnv is a real alert service over an in-memory SQLite store with one
// student, one scholarship and one application.
type alertEnv struct {
	store *sqlite.Store
	svc   *alerts.Service
	codec *actiontoken.Codec
}

func newAlertEnv(t *testing.T) *alertEnv {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Seed(context.Background(), sqlite.Fixture{
		Students: []sqlite.StudentFixture{
			{ID: "student-1", Email: "ana@example.edu", Name: "Ana"},
			{ID: "student-2", Email: "ben@example.edu", Name: "Ben"},
		},
		Scholarships: []sqlite.ScholarshipFixture{
			{ID: "sch-1", Name: "Gates Scholarship", Amount: decimal.RequireFromString("2500"), Deadline: t0.Add(72 * time.Hour)},
		},
		Applications: []sqlite.ApplicationFixture{
			{ID: "app-1", StudentID: "student-1", ScholarshipID: "sch-1", Status: "in_progress"},
		},
	}))

	codec, err := actiontoken.NewCodec(testActionSecret, actiontoken.WithClock(types.FixedClock{T: t0}))
	require.NoError(t, err)

	return &alertEnv{
		store: store,
		svc:   alerts.NewService(store, types.FixedClock{T: t0}, discardLogger()),
		codec: codec,
	}
}

func (e *alertEnv) deadlineAlert(t *testing.T) *types.Alert {
	t.Helper()
	a, err := e.svc.Create(context.Background(), alerts.CreateInput{
		StudentID:     "student-1",
		ApplicationID: strPtr("app-1"),
		Kind:          types.KindDeadline3Day,
		CauseKey:      "deadline:3d:2026-05-13",
	})
	require.NoError(t, err)
	return a
}

func (e *alertEnv) goalAlert(t *testing.T) *types.Alert {
	t.Helper()
	a, err := e.svc.Create(context.Background(), alerts.CreateInput{
		StudentID: "student-1",
		Kind:      types.KindGoalCompletion,
		CauseKey:  "goal:goal-1:5000",
	})
	require.NoError(t, err)
	return a
}

func (e *alertEnv) token(t *testing.T, alertID string, action types.AlertAction) string {
	t.Helper()
	tok, err := e.codec.Issue(alertID, action, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *alertEnv) status(t *testing.T, alertID string) types.AlertStatus {
	t.Helper()
	a, err := e.svc.Get(context.Background(), alertID)
	require.NoError(t, err)
	return a.Status
}

func serve(register func(chi.Router), req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"scholarwatch/internal/core"
	"scholarwatch/internal/types"
)

// StudentAlerts is the alert service surface the student endpoints use.
type StudentAlerts interface {
	ListActive(ctx context.Context, studentID string, includeSnoozed bool) ([]types.AlertView, error)
	Snooze(ctx context.Context, alertID, requesterStudentID string) (*types.Alert, error)
	Dismiss(ctx context.Context, alertID, requesterStudentID string) (*types.Alert, error)
}

// AlertHandler serves the signed-in student's alert list and in-app
// snooze/dismiss.
type AlertHandler struct {
	alerts StudentAlerts
	logger *slog.Logger
}

func NewAlertHandler(a StudentAlerts, l *slog.Logger) *AlertHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AlertHandler{alerts: a, logger: l}
}

// RegisterRoutes mounts the handler inside the authenticated /v1 group.
func (h *AlertHandler) RegisterRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/{id}/snooze", h.Snooze)
		r.Post("/{id}/dismiss", h.Dismiss)
	})
}

// List handles GET /v1/alerts?include_snoozed=true|false.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	includeSnoozed := false
	if raw := r.URL.Query().Get("include_snoozed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidInput, "include_snoozed must be true or false", err))
			return
		}
		includeSnoozed = v
	}

	views, err := h.alerts.ListActive(r.Context(), actor.StudentID, includeSnoozed)
	if err != nil {
		h.logFailure(r, "failed to list alerts", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: views})
}

// Snooze handles POST /v1/alerts/{id}/snooze.
func (h *AlertHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.alerts.Snooze)
}

// Dismiss handles POST /v1/alerts/{id}/dismiss.
func (h *AlertHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.alerts.Dismiss)
}

func (h *AlertHandler) apply(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) (*types.Alert, error)) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	alert, err := fn(r.Context(), chi.URLParam(r, "id"), actor.StudentID)
	if err != nil {
		h.logFailure(r, "alert transition failed", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: alert})
}

func (h *AlertHandler) logFailure(r *http.Request, msg string, err error) {
	if types.CodeOf(err).HTTPStatus() < http.StatusInternalServerError {
		return
	}
	types.LoggerFromContext(r.Context(), h.logger).ErrorContext(r.Context(), msg, "error", err)
}

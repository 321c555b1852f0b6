package handlers

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"scholarwatch/internal/actiontoken"
	"scholarwatch/internal/alerts"
	"scholarwatch/internal/types"
)

// ActionVerifier checks a signed action link.
type ActionVerifier interface {
	VerifyFor(token string, want types.AlertAction) (actiontoken.Claims, error)
}

// AlertTransitioner loads alerts and applies snooze and dismiss.
type AlertTransitioner interface {
	Get(ctx context.Context, alertID string) (*types.Alert, error)
	Apply(ctx context.Context, alertID, requesterStudentID string, action types.AlertAction) (alerts.TransitionResult, error)
}

// ScholarshipLookup resolves the scholarship shown in the redirect.
type ScholarshipLookup interface {
	ScholarshipName(ctx context.Context, applicationID string) (string, error)
}

const (
	msgIncomplete = "This link is incomplete."
	msgExpired    = "This link has expired, please sign in."
	msgInvalid    = "This link is not valid, please sign in."
	msgNotFound   = "We couldn't find that alert."
	msgHandled    = "This alert has already been taken care of."
	msgFailed     = "Something went wrong. Reference: "
)

var actionPage = template.Must(template.New("action").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Scholarwatch</title></head>
<body>
<main>
<p>{{.Message}}</p>
{{if .SignInURL}}<p><a href="{{.SignInURL}}">Go to Scholarwatch</a></p>{{end}}
</main>
</body>
</html>
`))

// ActionHandler serves the one-click links embedded in notifications. The
// token is the only credential: the alert id and the acting student come
// from the verified token and the stored alert, never from the request.
type ActionHandler struct {
	verifier     ActionVerifier
	alerts       AlertTransitioner
	scholarships ScholarshipLookup
	appBaseURL   string
	logger       *slog.Logger
}

// NewActionHandler creates an ActionHandler. appBaseURL is the student web
// app that successful actions redirect to.
func NewActionHandler(v ActionVerifier, a AlertTransitioner, s ScholarshipLookup, appBaseURL string, l *slog.Logger) *ActionHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ActionHandler{
		verifier:     v,
		alerts:       a,
		scholarships: s,
		appBaseURL:   strings.TrimRight(appBaseURL, "/"),
		logger:       l,
	}
}

// RegisterRoutes mounts the action links under /actions.
func (h *ActionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/actions", func(r chi.Router) {
		r.Get("/snooze", h.Snooze)
		r.Get("/dismiss", h.Dismiss)
		r.Get("/upload", h.Upload)
	})
}

// Snooze handles GET /actions/snooze?token=...
func (h *ActionHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, types.ActionSnooze)
}

// Dismiss handles GET /actions/dismiss?token=...
func (h *ActionHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, types.ActionDismiss)
}

// Upload handles GET /actions/upload?token=... by sending the student to the
// recommendation upload page of the alert's application. The alert itself is
// left untouched.
func (h *ActionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.verifiedAlert(w, r, types.ActionUpload)
	if !ok {
		return
	}
	if alert.ApplicationID == nil {
		h.page(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	target := h.appBaseURL + "/applications/" + url.PathEscape(*alert.ApplicationID) + "/recommendations"
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *ActionHandler) transition(w http.ResponseWriter, r *http.Request, action types.AlertAction) {
	alert, ok := h.verifiedAlert(w, r, action)
	if !ok {
		return
	}
	ctx := r.Context()

	res, err := h.alerts.Apply(ctx, alert.ID, alert.StudentID, action)
	switch {
	case err == nil:
	case types.IsCode(err, types.ErrCodeConflictAlertDismissed):
		h.page(w, r, http.StatusOK, msgHandled)
		return
	case types.IsCode(err, types.ErrCodeNotFoundAlert):
		h.page(w, r, http.StatusNotFound, msgNotFound)
		return
	default:
		h.failed(w, r, "alert transition failed", err)
		return
	}

	if action == types.ActionDismiss && !res.Changed {
		h.page(w, r, http.StatusOK, msgHandled)
		return
	}

	http.Redirect(w, r, h.applicationsURL(ctx, res.Alert, action), http.StatusSeeOther)
}

// verifiedAlert authenticates the token and loads its alert. It writes the
// error page itself and returns false when the request cannot proceed.
func (h *ActionHandler) verifiedAlert(w http.ResponseWriter, r *http.Request, action types.AlertAction) (*types.Alert, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		h.page(w, r, http.StatusBadRequest, msgIncomplete)
		return nil, false
	}

	claims, err := h.verifier.VerifyFor(token, action)
	if err != nil {
		types.LoggerFromContext(r.Context(), h.logger).WarnContext(r.Context(), "action token rejected",
			"action", string(action),
			"code", string(types.CodeOf(err)),
		)
		if types.IsCode(err, types.ErrCodeAuthTokenExpired) {
			h.page(w, r, http.StatusUnauthorized, msgExpired)
		} else {
			h.page(w, r, http.StatusUnauthorized, msgInvalid)
		}
		return nil, false
	}

	alert, err := h.alerts.Get(r.Context(), claims.AlertID)
	if err != nil {
		if types.IsCode(err, types.ErrCodeNotFoundAlert) {
			h.page(w, r, http.StatusNotFound, msgNotFound)
		} else {
			h.failed(w, r, "alert lookup failed", err)
		}
		return nil, false
	}
	return alert, true
}

func (h *ActionHandler) applicationsURL(ctx context.Context, alert *types.Alert, action types.AlertAction) string {
	q := url.Values{}
	if alert.ApplicationID != nil && h.scholarships != nil {
		name, err := h.scholarships.ScholarshipName(ctx, *alert.ApplicationID)
		if err != nil {
			// The action already happened; only the banner text is lost.
			types.LoggerFromContext(ctx, h.logger).WarnContext(ctx, "scholarship lookup failed",
				"alert_id", alert.ID,
				"error", err,
			)
		} else if name != "" {
			q.Set("scholarship", name)
		}
	}
	q.Set("action", action.PastTense())
	return h.appBaseURL + "/applications?" + q.Encode()
}

func (h *ActionHandler) failed(w http.ResponseWriter, r *http.Request, msg string, err error) {
	types.LoggerFromContext(r.Context(), h.logger).ErrorContext(r.Context(), msg, "error", err)
	h.page(w, r, http.StatusInternalServerError, msgFailed+types.GetRequestID(r.Context()))
}

func (h *ActionHandler) page(w http.ResponseWriter, r *http.Request, status int, message string) {
	data := struct {
		Message   string
		SignInURL string
	}{Message: message}
	if status == http.StatusUnauthorized {
		data.SignInURL = h.appBaseURL + "/login"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := actionPage.Execute(w, data); err != nil {
		types.LoggerFromContext(r.Context(), h.logger).ErrorContext(r.Context(), "failed to render action page", "error", err)
	}
}

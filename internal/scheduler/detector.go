package scheduler

import (
	"context"
	"time"

	"scholarwatch/internal/types"
)

// Detector selects the entities one job scans and decides, purely, whether
// each warrants an alert.
type Detector[E any] interface {
	Name() types.JobName
	// Scope returns the entities to evaluate. An error fails the whole run.
	Scope(ctx context.Context, now time.Time) ([]E, error)
	// Evaluate reports whether e warrants an alert and describes it.
	Evaluate(e E, now time.Time) (Candidate, bool)
	// EntityID identifies e in failure reports.
	EntityID(e E) string
}

// Candidate is a positive evaluation: the alert that should exist and the
// notification that announces it.
type Candidate struct {
	StudentID     string
	ApplicationID *string
	Kind          types.AlertKind
	CauseKey      string

	Recipient types.Recipient
	// Payload is the template context for the notification.
	Payload map[string]interface{}
	// Actions lists the links to sign into the notification.
	Actions []types.AlertAction

	// ResendAfter starts a new notification window. An active alert last
	// sent before it is sent again.
	ResendAfter *time.Time
}

// SubjectKey returns the uniqueness subject of the candidate's alert.
func (c Candidate) SubjectKey() string {
	return types.SubjectKeyFor(c.StudentID, c.ApplicationID)
}

var defaultActions = []types.AlertAction{types.ActionSnooze, types.ActionDismiss}

func applicationPayload(app types.ApplicationSnapshot, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"student_name":     app.StudentName,
		"scholarship_id":   app.ScholarshipID,
		"scholarship_name": app.ScholarshipName,
		"amount":           app.Amount.StringFixed(2),
		"deadline":         app.Deadline.UTC().Format(time.RFC3339),
		"days_remaining":   daysUntil(app.Deadline, now),
		"application_id":   app.ApplicationID,
	}
}

func applicationRecipient(app types.ApplicationSnapshot) types.Recipient {
	return types.Recipient{StudentID: app.StudentID, Email: app.StudentEmail, Name: app.StudentName}
}

// daysUntil rounds up, so 2.5 days remaining reads as 3.
func daysUntil(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func strPtr(s string) *string { return &s }

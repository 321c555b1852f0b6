package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnoozeDuration is the fixed snooze window. It is a policy constant and is
// deliberately not configurable.
const SnoozeDuration = 24 * time.Hour

// Alert is one notification-worthy event owned by a student and, for
// application-scoped kinds, tied to one application.
type Alert struct {
	ID            string      `json:"id" db:"id"`
	Kind          AlertKind   `json:"kind" db:"kind"`
	Status        AlertStatus `json:"status" db:"status"`
	StudentID     string      `json:"student_id" db:"student_id"`
	ApplicationID *string     `json:"application_id,omitempty" db:"application_id"`
	SubjectKey    string      `json:"-" db:"subject_key"`
	CauseKey      string      `json:"-" db:"cause_key"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastSentAt  *time.Time `json:"last_sent_at,omitempty" db:"last_sent_at"`
	SnoozeUntil *time.Time `json:"snooze_until,omitempty" db:"snooze_until"`
	DismissedAt *time.Time `json:"dismissed_at,omitempty" db:"dismissed_at"`
}

// SubjectKeyFor returns the uniqueness subject of an alert: its application
// when it has one, otherwise its student.
func SubjectKeyFor(studentID string, applicationID *string) string {
	if applicationID != nil && *applicationID != "" {
		return "application:" + *applicationID
	}
	return "student:" + studentID
}

// IsActive reports whether the alert occupies its (subject, kind) slot.
func (a *Alert) IsActive() bool {
	return a.Status == AlertStatusPending || a.Status == AlertStatusSnoozed
}

// EffectiveStatus applies lazy reactivation: a snooze that has elapsed reads
// as pending without any write.
func (a *Alert) EffectiveStatus(now time.Time) AlertStatus {
	if a.Status == AlertStatusSnoozed && a.SnoozeUntil != nil && !a.SnoozeUntil.After(now) {
		return AlertStatusPending
	}
	return a.Status
}

// SnoozedAt reports whether a snooze is still in force at now.
func (a *Alert) SnoozedAt(now time.Time) bool {
	return a.EffectiveStatus(now) == AlertStatusSnoozed
}

// Visible reports whether the alert belongs in a student's active list.
func (a *Alert) Visible(now time.Time, includeSnoozed bool) bool {
	switch a.EffectiveStatus(now) {
	case AlertStatusPending:
		return true
	case AlertStatusSnoozed:
		return includeSnoozed
	default:
		return false
	}
}

// AlertView is an alert with the scholarship context needed for display.
type AlertView struct {
	Alert
	EffectiveStatus   AlertStatus       `json:"effective_status" db:"-"`
	ScholarshipName   string            `json:"scholarship_name,omitempty" db:"scholarship_name"`
	Amount            *decimal.Decimal  `json:"amount,omitempty" db:"amount"`
	Deadline          *time.Time        `json:"deadline,omitempty" db:"deadline"`
	ApplicationStatus ApplicationStatus `json:"application_status,omitempty" db:"application_status"`
}

// ApplicationSnapshot is the read model detection jobs evaluate for
// application-scoped alerts.
type ApplicationSnapshot struct {
	ApplicationID              string            `db:"application_id"`
	StudentID                  string            `db:"student_id"`
	StudentEmail               string            `db:"student_email"`
	StudentName                string            `db:"student_name"`
	Status                     ApplicationStatus `db:"status"`
	LastActivityAt             *time.Time        `db:"last_activity_at"`
	ScholarshipID              string            `db:"scholarship_id"`
	ScholarshipName            string            `db:"scholarship_name"`
	Amount                     decimal.Decimal   `db:"amount"`
	Deadline                   time.Time         `db:"deadline"`
	OutstandingRecommendations int               `db:"outstanding_recommendations"`
}

// RecommendationSnapshot aggregates the outstanding recommendation requests
// of one application.
type RecommendationSnapshot struct {
	ApplicationSnapshot
	RecommenderNames []string
}

// GoalSnapshot is a student's active funding goal with the total secured so far.
type GoalSnapshot struct {
	GoalID        string          `db:"goal_id"`
	StudentID     string          `db:"student_id"`
	StudentEmail  string          `db:"student_email"`
	StudentName   string          `db:"student_name"`
	TargetAmount  decimal.Decimal `db:"target_amount"`
	SecuredAmount decimal.Decimal `db:"secured_amount"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Reached reports whether secured funding is at or above the target.
func (g GoalSnapshot) Reached() bool {
	return g.TargetAmount.IsPositive() && g.SecuredAmount.GreaterThanOrEqual(g.TargetAmount)
}

// EntityError records one entity's failure inside a job run.
type EntityError struct {
	EntityID string    `json:"entityId"`
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
}

// JobResult is the outcome of one detection job run. Success is false only
// when the scan could not run at all.
type JobResult struct {
	Job          JobName       `json:"job"`
	Success      bool          `json:"success"`
	CreatedCount int           `json:"createdCount"`
	SentCount    int           `json:"sentCount"`
	Failures     []EntityError `json:"failures"`
}

// JobRun is a persisted record of one job execution.
type JobRun struct {
	ID           int64        `db:"id"`
	Job          JobName      `db:"job"`
	StartedAt    time.Time    `db:"started_at"`
	FinishedAt   *time.Time   `db:"finished_at"`
	Status       JobRunStatus `db:"status"`
	CreatedCount int          `db:"created_count"`
	SentCount    int          `db:"sent_count"`
	FailureCount int          `db:"failure_count"`
	Error        *string      `db:"error"`
}

// Recipient is who a notification goes to.
type Recipient struct {
	StudentID string `json:"student_id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
}

// SendInput is a provider-agnostic email send request.
type SendInput struct {
	To           string
	From         SenderIdentity
	TemplateID   string
	TemplateData map[string]interface{}
	ReferenceID  string
}

// SenderIdentity defines the sender for outgoing emails.
type SenderIdentity struct {
	Name    string
	Address string
}

package types

import (
	"fmt"
	"strconv"
	"strings"
)

// AlertKind identifies what condition produced an alert.
type AlertKind string

const (
	KindDeadline7Day           AlertKind = "deadline-7d"
	KindDeadline3Day           AlertKind = "deadline-3d"
	KindRecommendationReminder AlertKind = "recommendation-reminder"
	KindGoalCompletion         AlertKind = "goal-completion"
	KindAtRisk                 AlertKind = "at-risk"
)

var alertKinds = map[AlertKind]struct{}{
	KindDeadline7Day:           {},
	KindDeadline3Day:           {},
	KindRecommendationReminder: {},
	KindGoalCompletion:         {},
	KindAtRisk:                 {},
}

// Valid reports whether k is one of the known kinds.
func (k AlertKind) Valid() bool {
	_, ok := alertKinds[k]
	return ok
}

// StudentScoped reports whether alerts of this kind attach to a student
// rather than an application.
func (k AlertKind) StudentScoped() bool {
	return k == KindGoalCompletion
}

// ParseAlertKind converts a stored or user supplied string into an AlertKind.
func ParseAlertKind(s string) (AlertKind, error) {
	k := AlertKind(s)
	if !k.Valid() {
		return "", NewAppError(ErrCodeValidationUnknownKind, fmt.Sprintf("unknown alert kind %q", s), nil)
	}
	return k, nil
}

// DeadlineKind returns the alert kind for a deadline threshold in days.
func DeadlineKind(days int) (AlertKind, error) {
	return ParseAlertKind("deadline-" + strconv.Itoa(days) + "d")
}

// DeadlineDays returns the threshold encoded in a deadline kind.
func (k AlertKind) DeadlineDays() (int, bool) {
	s := string(k)
	if !strings.HasPrefix(s, "deadline-") || !strings.HasSuffix(s, "d") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(s, "deadline-"), "d"))
	if err != nil {
		return 0, false
	}
	return n, true
}

// AlertStatus is the persisted lifecycle state of an alert.
type AlertStatus string

const (
	AlertStatusPending   AlertStatus = "pending"
	AlertStatusSnoozed   AlertStatus = "snoozed"
	AlertStatusDismissed AlertStatus = "dismissed"
)

// ParseAlertStatus converts a stored string into an AlertStatus.
func ParseAlertStatus(s string) (AlertStatus, error) {
	switch st := AlertStatus(s); st {
	case AlertStatusPending, AlertStatusSnoozed, AlertStatusDismissed:
		return st, nil
	default:
		return "", NewAppError(ErrCodeValidationUnknownStatus, fmt.Sprintf("unknown alert status %q", s), nil)
	}
}

// AlertAction is an operation a recipient may take from a notification link.
type AlertAction string

const (
	ActionSnooze  AlertAction = "snooze"
	ActionDismiss AlertAction = "dismiss"
	ActionUpload  AlertAction = "upload"
)

// ParseAlertAction converts a token claim into an AlertAction.
func ParseAlertAction(s string) (AlertAction, error) {
	switch a := AlertAction(s); a {
	case ActionSnooze, ActionDismiss, ActionUpload:
		return a, nil
	default:
		return "", NewAppError(ErrCodeValidationUnknownAction, fmt.Sprintf("unknown alert action %q", s), nil)
	}
}

// PastTense is used in redirect query parameters ("snoozed", "dismissed").
func (a AlertAction) PastTense() string {
	switch a {
	case ActionSnooze:
		return "snoozed"
	case ActionDismiss:
		return "dismissed"
	case ActionUpload:
		return "uploaded"
	default:
		return string(a)
	}
}

// ApplicationStatus mirrors the application record's status column.
type ApplicationStatus string

const (
	ApplicationDraft      ApplicationStatus = "draft"
	ApplicationInProgress ApplicationStatus = "in_progress"
	ApplicationSubmitted  ApplicationStatus = "submitted"
	ApplicationAwarded    ApplicationStatus = "awarded"
	ApplicationRejected   ApplicationStatus = "rejected"
	ApplicationWithdrawn  ApplicationStatus = "withdrawn"
)

// TerminalApplicationStatuses are excluded from deadline and risk scans.
var TerminalApplicationStatuses = []ApplicationStatus{
	ApplicationSubmitted,
	ApplicationAwarded,
	ApplicationRejected,
	ApplicationWithdrawn,
}

// Terminal reports whether no further student work is expected.
func (s ApplicationStatus) Terminal() bool {
	for _, t := range TerminalApplicationStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// RiskReason names the pattern that flagged an application as at risk.
type RiskReason string

const (
	RiskNotStarted             RiskReason = "not-started"
	RiskMissingRecommendations RiskReason = "missing-recommendations"
	RiskStalled                RiskReason = "stalled"
)

// JobName identifies a detection job.
type JobName string

const (
	JobDeadlineAlerts          JobName = "deadline-alerts"
	JobRecommendationReminders JobName = "recommendation-reminders"
	JobGoalCompletion          JobName = "goal-completion"
	JobAtRisk                  JobName = "at-risk"
)

// AllJobs lists every detection job in schedule order.
var AllJobs = []JobName{
	JobDeadlineAlerts,
	JobRecommendationReminders,
	JobGoalCompletion,
	JobAtRisk,
}

// JobSchedules holds the named UTC cron schedule of each job. Jobs run at
// distinct hours so their scans do not contend.
var JobSchedules = map[JobName]string{
	JobDeadlineAlerts:          "cron(0 6 * * ? *)",
	JobRecommendationReminders: "cron(0 7 * * ? *)",
	JobGoalCompletion:          "cron(0 8 * * ? *)",
	JobAtRisk:                  "cron(0 9 * * ? *)",
}

// ParseJobName validates a job name supplied by a trigger.
func ParseJobName(s string) (JobName, error) {
	for _, j := range AllJobs {
		if string(j) == s {
			return j, nil
		}
	}
	return "", NewAppError(ErrCodeValidationUnknownJob, fmt.Sprintf("unknown job %q", s), nil)
}

// JobRunStatus is the persisted outcome of a job run.
type JobRunStatus string

const (
	JobRunRunning   JobRunStatus = "running"
	JobRunSucceeded JobRunStatus = "succeeded"
	JobRunFailed    JobRunStatus = "failed"
)

// Package alerts implements the alert state machine: creation under the
// one-active-alert-per-subject rule, snooze and dismiss transitions applied
// atomically through the Store, and the student-facing active list with lazy
// snooze reactivation.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"scholarwatch/internal/types"
)

// CreateInput describes a new alert.
type CreateInput struct {
	StudentID     string          `validate:"required"`
	ApplicationID *string         `validate:"omitempty,min=1"`
	Kind          types.AlertKind `validate:"required"`
	CauseKey      string          `validate:"required,max=200"`
}

// TransitionResult is the outcome of Apply. Changed is false when the
// transition was an idempotent replay.
type TransitionResult struct {
	Alert   *types.Alert
	Changed bool
}

// Service applies alert state transitions.
type Service struct {
	store    Store
	clock    types.Clock
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService creates a Service. A nil clock uses the wall clock and a nil
// logger uses slog.Default().
func NewService(store Store, clock types.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		clock:    clock,
		logger:   logger,
		validate: validator.New(),
	}
}

// Create inserts a pending alert. It fails with ErrCodeConflictDuplicateActive
// if an active alert of the same kind exists for the same subject.
func (s *Service) Create(ctx context.Context, in CreateInput) (*types.Alert, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidInput, "invalid alert input", err)
	}
	kind, err := types.ParseAlertKind(string(in.Kind))
	if err != nil {
		return nil, err
	}
	if kind.StudentScoped() && in.ApplicationID != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidInput,
			fmt.Sprintf("%s alerts are student-scoped and take no application", kind), nil)
	}
	if !kind.StudentScoped() && in.ApplicationID == nil {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("%s alerts require an application", kind), nil)
	}

	alert := &types.Alert{
		ID:            uuid.NewString(),
		Kind:          kind,
		Status:        types.AlertStatusPending,
		StudentID:     in.StudentID,
		ApplicationID: in.ApplicationID,
		SubjectKey:    types.SubjectKeyFor(in.StudentID, in.ApplicationID),
		CauseKey:      in.CauseKey,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.store.Insert(ctx, alert); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "alert created",
		"alert_id", alert.ID,
		"kind", string(alert.Kind),
		"student_id", alert.StudentID,
	)
	return alert, nil
}

// Get loads an alert by id.
func (s *Service) Get(ctx context.Context, alertID string) (*types.Alert, error) {
	return s.store.Get(ctx, alertID)
}

// Snooze hides the alert for 24 hours.
func (s *Service) Snooze(ctx context.Context, alertID, requesterStudentID string) (*types.Alert, error) {
	res, err := s.Apply(ctx, alertID, requesterStudentID, types.ActionSnooze)
	if err != nil {
		return nil, err
	}
	return res.Alert, nil
}

// Dismiss closes the alert for good. Dismissing twice is not an error.
func (s *Service) Dismiss(ctx context.Context, alertID, requesterStudentID string) (*types.Alert, error) {
	res, err := s.Apply(ctx, alertID, requesterStudentID, types.ActionDismiss)
	if err != nil {
		return nil, err
	}
	return res.Alert, nil
}

// Apply runs the transition for action on the alert as requesterStudentID.
// Ownership is checked inside the atomic read-modify-write.
func (s *Service) Apply(ctx context.Context, alertID, requesterStudentID string, action types.AlertAction) (TransitionResult, error) {
	var transition func(types.Alert, string, time.Time) (types.Alert, bool, error)
	switch action {
	case types.ActionSnooze:
		transition = applySnooze
	case types.ActionDismiss:
		transition = applyDismiss
	default:
		return TransitionResult{}, types.NewAppError(types.ErrCodeValidationUnknownAction,
			fmt.Sprintf("action %q has no state transition", action), nil)
	}

	now := s.clock.Now()
	changed := false
	alert, err := s.store.Mutate(ctx, alertID, func(cur types.Alert) (types.Alert, bool, error) {
		next, ok, err := transition(cur, requesterStudentID, now)
		changed = ok
		return next, ok, err
	})
	if err != nil {
		return TransitionResult{}, err
	}

	if changed {
		s.logger.InfoContext(ctx, "alert transitioned",
			"alert_id", alert.ID,
			"action", string(action),
			"status", string(alert.Status),
		)
	}
	return TransitionResult{Alert: alert, Changed: changed}, nil
}

// ListActive returns the alerts a student should currently see: pending
// alerts and snoozed alerts whose snooze has elapsed, plus still-snoozed
// alerts when includeSnoozed is set. The nearest deadline comes first, then
// the most recently created.
func (s *Service) ListActive(ctx context.Context, studentID string, includeSnoozed bool) ([]types.AlertView, error) {
	rows, err := s.store.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]types.AlertView, 0, len(rows))
	for _, v := range rows {
		if !v.Alert.Visible(now, includeSnoozed) {
			continue
		}
		v.EffectiveStatus = v.Alert.EffectiveStatus(now)
		out = append(out, v)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return moreUrgent(out[i], out[j])
	})
	return out, nil
}

func moreUrgent(a, b types.AlertView) bool {
	switch {
	case a.Deadline != nil && b.Deadline == nil:
		return true
	case a.Deadline == nil && b.Deadline != nil:
		return false
	case a.Deadline != nil && b.Deadline != nil && !a.Deadline.Equal(*b.Deadline):
		return a.Deadline.Before(*b.Deadline)
	case !a.CreatedAt.Equal(b.CreatedAt):
		return a.CreatedAt.After(b.CreatedAt)
	default:
		return a.ID < b.ID
	}
}

// FindActive returns the active alert for (subjectKey, kind), or nil.
func (s *Service) FindActive(ctx context.Context, subjectKey string, kind types.AlertKind) (*types.Alert, error) {
	return s.store.FindActive(ctx, subjectKey, kind)
}

// HasAlerted reports whether the cause was ever alerted, in any status.
func (s *Service) HasAlerted(ctx context.Context, subjectKey string, kind types.AlertKind, causeKey string) (bool, error) {
	return s.store.HasAlerted(ctx, subjectKey, kind, causeKey)
}

// MarkSent records that the alert's notification was dispatched now.
func (s *Service) MarkSent(ctx context.Context, alertID string) error {
	return s.store.MarkSent(ctx, alertID, s.clock.Now())
}

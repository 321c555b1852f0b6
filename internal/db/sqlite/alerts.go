package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"scholarwatch/internal/alerts"
	"scholarwatch/internal/types"
)

var _ alerts.Store = (*Store)(nil)

const alertColumns = `id, kind, status, student_id, application_id, subject_key, cause_key,
	created_at, last_sent_at, snooze_until, dismissed_at`

type alertRow struct {
	ID            string     `db:"id"`
	Kind          string     `db:"kind"`
	Status        string     `db:"status"`
	StudentID     string     `db:"student_id"`
	ApplicationID *string    `db:"application_id"`
	SubjectKey    string     `db:"subject_key"`
	CauseKey      string     `db:"cause_key"`
	CreatedAt     Timestamp  `db:"created_at"`
	LastSentAt    *Timestamp `db:"last_sent_at"`
	SnoozeUntil   *Timestamp `db:"snooze_until"`
	DismissedAt   *Timestamp `db:"dismissed_at"`
}

func (r alertRow) toAlert() (*types.Alert, error) {
	kind, err := types.ParseAlertKind(r.Kind)
	if err != nil {
		return nil, err
	}
	status, err := types.ParseAlertStatus(r.Status)
	if err != nil {
		return nil, err
	}
	return &types.Alert{
		ID:            r.ID,
		Kind:          kind,
		Status:        status,
		StudentID:     r.StudentID,
		ApplicationID: r.ApplicationID,
		SubjectKey:    r.SubjectKey,
		CauseKey:      r.CauseKey,
		CreatedAt:     r.CreatedAt.Time,
		LastSentAt:    timePtr(r.LastSentAt),
		SnoozeUntil:   timePtr(r.SnoozeUntil),
		DismissedAt:   timePtr(r.DismissedAt),
	}, nil
}

// Insert stores a new alert unless an active one occupies its slot.
func (s *Store) Insert(ctx context.Context, a *types.Alert) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, kind, status, student_id, application_id, subject_key, cause_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subject_key, kind) WHERE status IN ('pending', 'snoozed') DO NOTHING`,
		a.ID, string(a.Kind), string(a.Status), a.StudentID, optionalString(a.ApplicationID),
		a.SubjectKey, a.CauseKey, TS(a.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert alert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert alert", err)
	}
	if n == 0 {
		return types.NewAppErrorWithDetails(types.ErrCodeConflictDuplicateActive,
			fmt.Sprintf("an active %s alert already exists", a.Kind), nil,
			map[string]any{"subject": a.SubjectKey, "kind": string(a.Kind)})
	}
	return nil
}

// Get loads an alert by id.
func (s *Store) Get(ctx context.Context, id string) (*types.Alert, error) {
	var row alertRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id); err != nil {
		return nil, readError(err)
	}
	return row.toAlert()
}

// Mutate applies fn inside an immediate transaction, which takes the write
// lock before the read.
func (s *Store) Mutate(ctx context.Context, id string, fn alerts.MutateFunc) (*types.Alert, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var row alertRow
	if err := tx.GetContext(ctx, &row, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id); err != nil {
		return nil, readError(err)
	}
	current, err := row.toAlert()
	if err != nil {
		return nil, err
	}

	next, changed, err := fn(*current)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE alerts SET status = ?, snooze_until = ?, dismissed_at = ?, last_sent_at = ? WHERE id = ?`,
		string(next.Status), optionalTS(next.SnoozeUntil), optionalTS(next.DismissedAt),
		optionalTS(next.LastSentAt), id,
	); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update alert", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to commit alert update", err)
	}
	return &next, nil
}

type alertViewRow struct {
	alertRow
	ScholarshipName   *string    `db:"scholarship_name"`
	Amount            *string    `db:"amount"`
	Deadline          *Timestamp `db:"deadline"`
	ApplicationStatus *string    `db:"application_status"`
}

// ListForStudent returns the student's pending and snoozed alerts.
func (s *Store) ListForStudent(ctx context.Context, studentID string) ([]types.AlertView, error) {
	var rows []alertViewRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT a.id, a.kind, a.status, a.student_id, a.application_id, a.subject_key, a.cause_key,
		        a.created_at, a.last_sent_at, a.snooze_until, a.dismissed_at,
		        s.name AS scholarship_name, s.amount AS amount, s.deadline AS deadline,
		        ap.status AS application_status
		 FROM alerts a
		 LEFT JOIN applications ap ON ap.id = a.application_id
		 LEFT JOIN scholarships s ON s.id = ap.scholarship_id
		 WHERE a.student_id = ? AND a.status IN ('pending', 'snoozed')
		 ORDER BY s.deadline IS NULL, s.deadline, a.created_at DESC`,
		studentID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list alerts", err)
	}

	out := make([]types.AlertView, 0, len(rows))
	for _, r := range rows {
		a, err := r.toAlert()
		if err != nil {
			return nil, err
		}
		v := types.AlertView{Alert: *a, Deadline: timePtr(r.Deadline)}
		if r.ScholarshipName != nil {
			v.ScholarshipName = *r.ScholarshipName
		}
		if r.Amount != nil {
			d, err := decimal.NewFromString(*r.Amount)
			if err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalDB, "invalid scholarship amount", err)
			}
			v.Amount = &d
		}
		if r.ApplicationStatus != nil {
			v.ApplicationStatus = types.ApplicationStatus(*r.ApplicationStatus)
		}
		out = append(out, v)
	}
	return out, nil
}

// FindActive returns the active alert for (subjectKey, kind), or nil.
func (s *Store) FindActive(ctx context.Context, subjectKey string, kind types.AlertKind) (*types.Alert, error) {
	var row alertRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+alertColumns+` FROM alerts
		 WHERE subject_key = ? AND kind = ? AND status IN ('pending', 'snoozed')`,
		subjectKey, string(kind),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, readError(err)
	}
	return row.toAlert()
}

// HasAlerted reports whether the cause was ever alerted.
func (s *Store) HasAlerted(ctx context.Context, subjectKey string, kind types.AlertKind, causeKey string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM alerts WHERE subject_key = ? AND kind = ? AND cause_key = ?`,
		subjectKey, string(kind), causeKey,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check alert history", err)
	}
	return n > 0, nil
}

// MarkSent records a successful dispatch.
func (s *Store) MarkSent(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET last_sent_at = ? WHERE id = ?`, TS(at), id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark alert sent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAlert, "alert not found", nil)
	}
	return nil
}

func readError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return types.NewAppError(types.ErrCodeNotFoundAlert, "alert not found", nil)
	}
	return types.NewAppError(types.ErrCodeInternalDB, "failed to read alert", err)
}

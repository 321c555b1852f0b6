package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"scholarwatch/internal/alerts"
	"scholarwatch/internal/types"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

const alertColumns = `id, kind, status, student_id, application_id, subject_key, cause_key,
	created_at, last_sent_at, snooze_until, dismissed_at`

// AlertRepository is the PostgreSQL implementation of alerts.Store.
type AlertRepository struct {
	db DBTX
}

var _ alerts.Store = (*AlertRepository)(nil)

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

// Insert stores a new pending alert. The partial unique index on
// (subject_key, kind) for active rows makes the duplicate check and the write
// one statement.
func (r *AlertRepository) Insert(ctx context.Context, a *types.Alert) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO alerts (id, kind, status, student_id, application_id, subject_key, cause_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (subject_key, kind) WHERE status IN ('pending', 'snoozed') DO NOTHING`,
		a.ID, string(a.Kind), string(a.Status), a.StudentID, a.ApplicationID,
		a.SubjectKey, a.CauseKey, a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return duplicateActive(a)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert alert", err)
	}
	if tag.RowsAffected() == 0 {
		return duplicateActive(a)
	}
	return nil
}

func duplicateActive(a *types.Alert) error {
	return types.NewAppErrorWithDetails(types.ErrCodeConflictDuplicateActive,
		fmt.Sprintf("an active %s alert already exists", a.Kind), nil,
		map[string]any{"subject": a.SubjectKey, "kind": string(a.Kind)})
}

// Get loads an alert by id.
func (r *AlertRepository) Get(ctx context.Context, id string) (*types.Alert, error) {
	row := r.db.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	a, err := scanAlert(row)
	if err != nil {
		return nil, alertReadError(err, id)
	}
	return a, nil
}

// Mutate locks the alert row, applies fn and writes the result in one
// transaction. Concurrent callers on the same alert serialize on the row lock.
func (r *AlertRepository) Mutate(ctx context.Context, id string, fn alerts.MutateFunc) (*types.Alert, error) {
	var result *types.Alert
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1 FOR UPDATE`, id)
		current, err := scanAlert(row)
		if err != nil {
			return alertReadError(err, id)
		}

		next, changed, err := fn(*current)
		if err != nil {
			return err
		}
		if !changed {
			result = current
			return nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE alerts
			 SET status = $2, snooze_until = $3, dismissed_at = $4, last_sent_at = $5
			 WHERE id = $1`,
			id, string(next.Status), next.SnoozeUntil, next.DismissedAt, next.LastSentAt,
		); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to update alert", err)
		}
		result = &next
		return nil
	})
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "alert transaction failed", err)
	}
	return result, nil
}

// ListForStudent returns the student's pending and snoozed alerts joined with
// their application and scholarship.
func (r *AlertRepository) ListForStudent(ctx context.Context, studentID string) ([]types.AlertView, error) {
	rows, err := r.db.Query(ctx,
		`SELECT a.id, a.kind, a.status, a.student_id, a.application_id, a.subject_key, a.cause_key,
		        a.created_at, a.last_sent_at, a.snooze_until, a.dismissed_at,
		        s.name, s.amount::text, s.deadline, ap.status
		 FROM alerts a
		 LEFT JOIN applications ap ON ap.id = a.application_id
		 LEFT JOIN scholarships s ON s.id = ap.scholarship_id
		 WHERE a.student_id = $1 AND a.status IN ('pending', 'snoozed')
		 ORDER BY s.deadline ASC NULLS LAST, a.created_at DESC`,
		studentID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list alerts", err)
	}
	defer rows.Close()

	var out []types.AlertView
	for rows.Next() {
		var (
			v            types.AlertView
			kind, status string
			name, amount *string
			appStatus    *string
			deadline     *time.Time
		)
		if err := rows.Scan(
			&v.ID, &kind, &status, &v.StudentID, &v.ApplicationID, &v.SubjectKey, &v.CauseKey,
			&v.CreatedAt, &v.LastSentAt, &v.SnoozeUntil, &v.DismissedAt,
			&name, &amount, &deadline, &appStatus,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert", err)
		}
		if err := parseAlertEnums(&v.Alert, kind, status); err != nil {
			return nil, err
		}
		if name != nil {
			v.ScholarshipName = *name
		}
		if amount != nil {
			d, err := decimal.NewFromString(*amount)
			if err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalDB, "invalid scholarship amount", err)
			}
			v.Amount = &d
		}
		if appStatus != nil {
			v.ApplicationStatus = types.ApplicationStatus(*appStatus)
		}
		v.Deadline = deadline
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate alerts", err)
	}
	return out, nil
}

// FindActive returns the active alert occupying (subjectKey, kind), or nil.
func (r *AlertRepository) FindActive(ctx context.Context, subjectKey string, kind types.AlertKind) (*types.Alert, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts
		 WHERE subject_key = $1 AND kind = $2 AND status IN ('pending', 'snoozed')`,
		subjectKey, string(kind),
	)
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, alertReadError(err, subjectKey)
	}
	return a, nil
}

// HasAlerted reports whether any alert was ever created for the cause.
func (r *AlertRepository) HasAlerted(ctx context.Context, subjectKey string, kind types.AlertKind, causeKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM alerts WHERE subject_key = $1 AND kind = $2 AND cause_key = $3
		 )`,
		subjectKey, string(kind), causeKey,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check alert history", err)
	}
	return exists, nil
}

// MarkSent records the time the alert's notification was dispatched.
func (r *AlertRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE alerts SET last_sent_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark alert sent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAlert, "alert not found", nil)
	}
	return nil
}

func scanAlert(row pgx.Row) (*types.Alert, error) {
	var (
		a            types.Alert
		kind, status string
	)
	if err := row.Scan(
		&a.ID, &kind, &status, &a.StudentID, &a.ApplicationID, &a.SubjectKey, &a.CauseKey,
		&a.CreatedAt, &a.LastSentAt, &a.SnoozeUntil, &a.DismissedAt,
	); err != nil {
		return nil, err
	}
	if err := parseAlertEnums(&a, kind, status); err != nil {
		return nil, err
	}
	return &a, nil
}

// parseAlertEnums rejects rows carrying a kind or status this build does not
// know instead of passing them through.
func parseAlertEnums(a *types.Alert, kind, status string) error {
	k, err := types.ParseAlertKind(kind)
	if err != nil {
		return err
	}
	s, err := types.ParseAlertStatus(status)
	if err != nil {
		return err
	}
	a.Kind, a.Status = k, s
	return nil
}

func alertReadError(err error, ref string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return types.NewAppError(types.ErrCodeNotFoundAlert, "alert not found", nil)
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(types.ErrCodeInternalDB, fmt.Sprintf("failed to read alert %s", ref), err)
}

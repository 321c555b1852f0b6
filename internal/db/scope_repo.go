package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"scholarwatch/internal/types"
)

// ScopeRepository runs the read-only queries that select the entities each
// detection job evaluates. It never writes.
type ScopeRepository struct {
	db DBTX
}

// NewScopeRepository creates a new ScopeRepository.
func NewScopeRepository(db DBTX) *ScopeRepository {
	return &ScopeRepository{db: db}
}

const applicationSnapshotSelect = `
	SELECT ap.id, ap.student_id, st.email, st.name, ap.status, ap.last_activity_at,
	       s.id, s.name, s.amount::text, s.deadline,
	       (SELECT count(*) FROM recommendation_requests rr
	         WHERE rr.application_id = ap.id AND rr.status = 'requested')
	FROM applications ap
	JOIN students st ON st.id = ap.student_id
	JOIN scholarships s ON s.id = ap.scholarship_id`

// ApplicationsDueBetween returns non-terminal applications whose scholarship
// deadline falls in (from, to], ordered by deadline.
func (r *ScopeRepository) ApplicationsDueBetween(ctx context.Context, from, to time.Time) ([]types.ApplicationSnapshot, error) {
	rows, err := r.db.Query(ctx,
		applicationSnapshotSelect+`
		 WHERE ap.status <> ALL($1) AND s.deadline > $2 AND s.deadline <= $3
		 ORDER BY s.deadline, ap.id`,
		terminalStatuses(), from, to,
	)
	if err != nil {
		return nil, scopeError("applications", err)
	}
	defer rows.Close()

	var out []types.ApplicationSnapshot
	for rows.Next() {
		app, err := scanApplicationSnapshot(rows)
		if err != nil {
			return nil, scopeError("applications", err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, scopeError("applications", err)
	}
	return out, nil
}

// RecommendationsDueBetween returns one aggregate per non-terminal
// application that still has outstanding recommendation requests and a
// deadline in (from, to].
func (r *ScopeRepository) RecommendationsDueBetween(ctx context.Context, from, to time.Time) ([]types.RecommendationSnapshot, error) {
	rows, err := r.db.Query(ctx,
		`SELECT ap.id, ap.student_id, st.email, st.name, ap.status, ap.last_activity_at,
		        s.id, s.name, s.amount::text, s.deadline,
		        count(rr.id), array_agg(rr.recommender_name ORDER BY rr.recommender_name)
		 FROM applications ap
		 JOIN students st ON st.id = ap.student_id
		 JOIN scholarships s ON s.id = ap.scholarship_id
		 JOIN recommendation_requests rr ON rr.application_id = ap.id AND rr.status = 'requested'
		 WHERE ap.status <> ALL($1) AND s.deadline > $2 AND s.deadline <= $3
		 GROUP BY ap.id, st.email, st.name, s.id
		 ORDER BY s.deadline, ap.id`,
		terminalStatuses(), from, to,
	)
	if err != nil {
		return nil, scopeError("recommendation requests", err)
	}
	defer rows.Close()

	var out []types.RecommendationSnapshot
	for rows.Next() {
		var (
			rec         types.RecommendationSnapshot
			status      string
			amount      string
			outstanding int64
		)
		app := &rec.ApplicationSnapshot
		if err := rows.Scan(
			&app.ApplicationID, &app.StudentID, &app.StudentEmail, &app.StudentName, &status, &app.LastActivityAt,
			&app.ScholarshipID, &app.ScholarshipName, &amount, &app.Deadline,
			&outstanding, &rec.RecommenderNames,
		); err != nil {
			return nil, scopeError("recommendation requests", err)
		}
		if err := fillApplication(app, status, amount, outstanding); err != nil {
			return nil, scopeError("recommendation requests", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, scopeError("recommendation requests", err)
	}
	return out, nil
}

// ActiveGoals returns every active funding goal with the sum of the
// student's awarded scholarships.
func (r *ScopeRepository) ActiveGoals(ctx context.Context) ([]types.GoalSnapshot, error) {
	rows, err := r.db.Query(ctx,
		`SELECT g.id, g.student_id, st.email, st.name, g.target_amount::text,
		        COALESCE((
		          SELECT sum(s.amount) FROM applications ap
		          JOIN scholarships s ON s.id = ap.scholarship_id
		          WHERE ap.student_id = g.student_id AND ap.status = 'awarded'
		        ), 0)::text,
		        g.updated_at
		 FROM funding_goals g
		 JOIN students st ON st.id = g.student_id
		 WHERE g.active
		 ORDER BY g.student_id, g.id`,
	)
	if err != nil {
		return nil, scopeError("funding goals", err)
	}
	defer rows.Close()

	var out []types.GoalSnapshot
	for rows.Next() {
		var (
			g               types.GoalSnapshot
			target, secured string
		)
		if err := rows.Scan(&g.GoalID, &g.StudentID, &g.StudentEmail, &g.StudentName,
			&target, &secured, &g.UpdatedAt); err != nil {
			return nil, scopeError("funding goals", err)
		}
		if g.TargetAmount, err = decimal.NewFromString(target); err != nil {
			return nil, scopeError("funding goals", err)
		}
		if g.SecuredAmount, err = decimal.NewFromString(secured); err != nil {
			return nil, scopeError("funding goals", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, scopeError("funding goals", err)
	}
	return out, nil
}

// ScholarshipName returns the name of the scholarship an application is for,
// or "" when the application no longer exists.
func (r *ScopeRepository) ScholarshipName(ctx context.Context, applicationID string) (string, error) {
	var name string
	err := r.db.QueryRow(ctx,
		`SELECT s.name FROM applications ap
		 JOIN scholarships s ON s.id = ap.scholarship_id
		 WHERE ap.id = $1`,
		applicationID,
	).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", scopeError("scholarship", err)
	}
	return name, nil
}

func scanApplicationSnapshot(rows pgx.Rows) (types.ApplicationSnapshot, error) {
	var (
		app         types.ApplicationSnapshot
		status      string
		amount      string
		outstanding int64
	)
	if err := rows.Scan(
		&app.ApplicationID, &app.StudentID, &app.StudentEmail, &app.StudentName, &status, &app.LastActivityAt,
		&app.ScholarshipID, &app.ScholarshipName, &amount, &app.Deadline, &outstanding,
	); err != nil {
		return app, err
	}
	return app, fillApplication(&app, status, amount, outstanding)
}

func fillApplication(app *types.ApplicationSnapshot, status, amount string, outstanding int64) error {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return err
	}
	app.Status = types.ApplicationStatus(status)
	app.Amount = d
	app.OutstandingRecommendations = int(outstanding)
	return nil
}

func terminalStatuses() []string {
	out := make([]string, len(types.TerminalApplicationStatuses))
	for i, s := range types.TerminalApplicationStatuses {
		out[i] = string(s)
	}
	return out
}

func scopeError(what string, err error) error {
	return types.NewAppError(types.ErrCodeInternalScopeRead, "failed to read "+what, err)
}

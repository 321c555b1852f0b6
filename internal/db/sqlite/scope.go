package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"scholarwatch/internal/types"
)

type applicationRow struct {
	ApplicationID   string     `db:"application_id"`
	StudentID       string     `db:"student_id"`
	StudentEmail    string     `db:"student_email"`
	StudentName     string     `db:"student_name"`
	Status          string     `db:"status"`
	LastActivityAt  *Timestamp `db:"last_activity_at"`
	ScholarshipID   string     `db:"scholarship_id"`
	ScholarshipName string     `db:"scholarship_name"`
	Amount          string     `db:"amount"`
	Deadline        Timestamp  `db:"deadline"`
	Outstanding     int        `db:"outstanding"`
}

func (r applicationRow) snapshot() (types.ApplicationSnapshot, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return types.ApplicationSnapshot{}, err
	}
	return types.ApplicationSnapshot{
		ApplicationID:              r.ApplicationID,
		StudentID:                  r.StudentID,
		StudentEmail:               r.StudentEmail,
		StudentName:                r.StudentName,
		Status:                     types.ApplicationStatus(r.Status),
		LastActivityAt:             timePtr(r.LastActivityAt),
		ScholarshipID:              r.ScholarshipID,
		ScholarshipName:            r.ScholarshipName,
		Amount:                     amount,
		Deadline:                   r.Deadline.Time,
		OutstandingRecommendations: r.Outstanding,
	}, nil
}

// ApplicationsDueBetween returns non-terminal applications with a deadline in
// (from, to].
func (s *Store) ApplicationsDueBetween(ctx context.Context, from, to time.Time) ([]types.ApplicationSnapshot, error) {
	query, args, err := sqlx.In(
		`SELECT ap.id AS application_id, ap.student_id, st.email AS student_email, st.name AS student_name,
		        ap.status, ap.last_activity_at, s.id AS scholarship_id, s.name AS scholarship_name,
		        s.amount, s.deadline,
		        (SELECT COUNT(*) FROM recommendation_requests rr
		          WHERE rr.application_id = ap.id AND rr.status = 'requested') AS outstanding
		 FROM applications ap
		 JOIN students st ON st.id = ap.student_id
		 JOIN scholarships s ON s.id = ap.scholarship_id
		 WHERE ap.status NOT IN (?) AND s.deadline > ? AND s.deadline <= ?
		 ORDER BY s.deadline, ap.id`,
		terminalStatuses(), TS(from), TS(to),
	)
	if err != nil {
		return nil, scopeError("applications", err)
	}

	var rows []applicationRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, scopeError("applications", err)
	}

	out := make([]types.ApplicationSnapshot, 0, len(rows))
	for _, r := range rows {
		app, err := r.snapshot()
		if err != nil {
			return nil, scopeError("applications", err)
		}
		out = append(out, app)
	}
	return out, nil
}

// RecommendationsDueBetween returns applications due in (from, to] that
// still have outstanding recommendation requests, with the recommenders'
// names.
func (s *Store) RecommendationsDueBetween(ctx context.Context, from, to time.Time) ([]types.RecommendationSnapshot, error) {
	apps, err := s.ApplicationsDueBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, app := range apps {
		if app.OutstandingRecommendations > 0 {
			ids = append(ids, app.ApplicationID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		`SELECT application_id, recommender_name FROM recommendation_requests
		 WHERE status = 'requested' AND application_id IN (?)
		 ORDER BY application_id, recommender_name`,
		ids,
	)
	if err != nil {
		return nil, scopeError("recommendation requests", err)
	}
	var requests []struct {
		ApplicationID string `db:"application_id"`
		Recommender   string `db:"recommender_name"`
	}
	if err := s.db.SelectContext(ctx, &requests, s.db.Rebind(query), args...); err != nil {
		return nil, scopeError("recommendation requests", err)
	}

	names := make(map[string][]string, len(ids))
	for _, r := range requests {
		names[r.ApplicationID] = append(names[r.ApplicationID], r.Recommender)
	}

	out := make([]types.RecommendationSnapshot, 0, len(ids))
	for _, app := range apps {
		if app.OutstandingRecommendations == 0 {
			continue
		}
		out = append(out, types.RecommendationSnapshot{
			ApplicationSnapshot: app,
			RecommenderNames:    names[app.ApplicationID],
		})
	}
	return out, nil
}

// ActiveGoals returns active funding goals with the sum of each student's
// awarded scholarships. Amounts are summed as decimals, not in SQL.
func (s *Store) ActiveGoals(ctx context.Context) ([]types.GoalSnapshot, error) {
	var goals []struct {
		GoalID       string    `db:"goal_id"`
		StudentID    string    `db:"student_id"`
		StudentEmail string    `db:"student_email"`
		StudentName  string    `db:"student_name"`
		Target       string    `db:"target_amount"`
		UpdatedAt    Timestamp `db:"updated_at"`
	}
	err := s.db.SelectContext(ctx, &goals,
		`SELECT g.id AS goal_id, g.student_id, st.email AS student_email, st.name AS student_name,
		        g.target_amount, g.updated_at
		 FROM funding_goals g
		 JOIN students st ON st.id = g.student_id
		 WHERE g.active = 1
		 ORDER BY g.student_id, g.id`,
	)
	if err != nil {
		return nil, scopeError("funding goals", err)
	}

	var awarded []struct {
		StudentID string `db:"student_id"`
		Amount    string `db:"amount"`
	}
	err = s.db.SelectContext(ctx, &awarded,
		`SELECT ap.student_id, s.amount
		 FROM applications ap
		 JOIN scholarships s ON s.id = ap.scholarship_id
		 WHERE ap.status = 'awarded'`,
	)
	if err != nil {
		return nil, scopeError("awarded applications", err)
	}

	secured := make(map[string]decimal.Decimal)
	for _, a := range awarded {
		d, err := decimal.NewFromString(a.Amount)
		if err != nil {
			return nil, scopeError("awarded applications", err)
		}
		secured[a.StudentID] = secured[a.StudentID].Add(d)
	}

	out := make([]types.GoalSnapshot, 0, len(goals))
	for _, g := range goals {
		target, err := decimal.NewFromString(g.Target)
		if err != nil {
			return nil, scopeError("funding goals", err)
		}
		out = append(out, types.GoalSnapshot{
			GoalID:        g.GoalID,
			StudentID:     g.StudentID,
			StudentEmail:  g.StudentEmail,
			StudentName:   g.StudentName,
			TargetAmount:  target,
			SecuredAmount: secured[g.StudentID],
			UpdatedAt:     g.UpdatedAt.Time,
		})
	}
	return out, nil
}

// ScholarshipName returns the scholarship name of an application, or "" when
// the application does not exist.
func (s *Store) ScholarshipName(ctx context.Context, applicationID string) (string, error) {
	var name string
	err := s.db.GetContext(ctx, &name,
		`SELECT s.name FROM applications ap
		 JOIN scholarships s ON s.id = ap.scholarship_id
		 WHERE ap.id = ?`,
		applicationID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", scopeError("scholarship", err)
	}
	return name, nil
}

func terminalStatuses() []string {
	out := make([]string, len(types.TerminalApplicationStatuses))
	for i, st := range types.TerminalApplicationStatuses {
		out[i] = string(st)
	}
	return out
}

func scopeError(what string, err error) error {
	return types.NewAppError(types.ErrCodeInternalScopeRead, "failed to read "+what, err)
}

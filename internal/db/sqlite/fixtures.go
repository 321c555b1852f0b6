package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Fixture is a set of application records for a local database. The
// job-runner loads one from JSON with --seed; tests build them inline.
type Fixture struct {
	Students        []StudentFixture        `json:"students"`
	Scholarships    []ScholarshipFixture    `json:"scholarships"`
	Applications    []ApplicationFixture    `json:"applications"`
	Recommendations []RecommendationFixture `json:"recommendations"`
	Goals           []GoalFixture           `json:"goals"`
}

type StudentFixture struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type ScholarshipFixture struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Deadline time.Time       `json:"deadline"`
}

type ApplicationFixture struct {
	ID             string     `json:"id"`
	StudentID      string     `json:"student_id"`
	ScholarshipID  string     `json:"scholarship_id"`
	Status         string     `json:"status"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
}

type RecommendationFixture struct {
	ID            string `json:"id"`
	ApplicationID string `json:"application_id"`
	Recommender   string `json:"recommender"`
	Status        string `json:"status"`
}

type GoalFixture struct {
	ID           string          `json:"id"`
	StudentID    string          `json:"student_id"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	Active       bool            `json:"active"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Seed upserts every record in f in one transaction.
func (s *Store) Seed(ctx context.Context, f Fixture) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning seed: %w", err)
	}
	defer tx.Rollback()

	for _, st := range f.Students {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO students (id, email, name) VALUES (?, ?, ?)`,
			st.ID, st.Email, st.Name); err != nil {
			return fmt.Errorf("seeding student %s: %w", st.ID, err)
		}
	}
	for _, sc := range f.Scholarships {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO scholarships (id, name, amount, deadline) VALUES (?, ?, ?, ?)`,
			sc.ID, sc.Name, sc.Amount.String(), TS(sc.Deadline)); err != nil {
			return fmt.Errorf("seeding scholarship %s: %w", sc.ID, err)
		}
	}
	for _, ap := range f.Applications {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO applications (id, student_id, scholarship_id, status, last_activity_at)
			 VALUES (?, ?, ?, ?, ?)`,
			ap.ID, ap.StudentID, ap.ScholarshipID, ap.Status, optionalTS(ap.LastActivityAt)); err != nil {
			return fmt.Errorf("seeding application %s: %w", ap.ID, err)
		}
	}
	for _, rr := range f.Recommendations {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO recommendation_requests (id, application_id, recommender_name, status)
			 VALUES (?, ?, ?, ?)`,
			rr.ID, rr.ApplicationID, rr.Recommender, rr.Status); err != nil {
			return fmt.Errorf("seeding recommendation %s: %w", rr.ID, err)
		}
	}
	for _, g := range f.Goals {
		active := 0
		if g.Active {
			active = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO funding_goals (id, student_id, target_amount, active, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			g.ID, g.StudentID, g.TargetAmount.String(), active, TS(g.UpdatedAt)); err != nil {
			return fmt.Errorf("seeding goal %s: %w", g.ID, err)
		}
	}
	return tx.Commit()
}

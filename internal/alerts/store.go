package alerts

import (
	"context"
	"time"

	"scholarwatch/internal/types"
)

// MutateFunc computes the next state of an alert from its current state. It
// runs while the store holds the row for update, so it must be pure. When
// changed is false the store writes nothing.
type MutateFunc func(current types.Alert) (next types.Alert, changed bool, err error)

// Store is the persistence contract of the alert engine. Implementations must
// reject unknown kinds and statuses when reading rows back.
type Store interface {
	// Insert stores a new alert. It fails with ErrCodeConflictDuplicateActive
	// when an active alert already occupies (SubjectKey, Kind); the check and
	// the insert are a single atomic operation.
	Insert(ctx context.Context, alert *types.Alert) error

	// Get loads an alert by id, failing with ErrCodeNotFoundAlert.
	Get(ctx context.Context, id string) (*types.Alert, error)

	// Mutate applies fn to the alert as one atomic read-modify-write.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*types.Alert, error)

	// ListForStudent returns the student's pending and snoozed alerts with
	// their scholarship context.
	ListForStudent(ctx context.Context, studentID string) ([]types.AlertView, error)

	// FindActive returns the active alert for (subjectKey, kind), or nil.
	FindActive(ctx context.Context, subjectKey string, kind types.AlertKind) (*types.Alert, error)

	// HasAlerted reports whether any alert, in any status, was ever created
	// for (subjectKey, kind, causeKey).
	HasAlerted(ctx context.Context, subjectKey string, kind types.AlertKind, causeKey string) (bool, error)

	// MarkSent records a successful dispatch.
	MarkSent(ctx context.Context, id string, at time.Time) error
}

package sqlite

import (
	"context"
	"time"

	"scholarwatch/internal/types"
)

// JobRuns records job executions in the local job_runs table.
type JobRuns struct {
	store *Store
}

// JobRuns returns the store's job run log.
func (s *Store) JobRuns() *JobRuns {
	return &JobRuns{store: s}
}

// Start inserts a running row and returns its id.
func (j *JobRuns) Start(ctx context.Context, job types.JobName, startedAt time.Time) (int64, error) {
	res, err := j.store.db.ExecContext(ctx,
		`INSERT INTO job_runs (job, started_at, status) VALUES (?, ?, 'running')`,
		string(job), TS(startedAt),
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job run", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job run", err)
	}
	return id, nil
}

// Finish closes the run with its counts.
func (j *JobRuns) Finish(ctx context.Context, id int64, result types.JobResult, jobErr error, finishedAt time.Time) error {
	status := types.JobRunSucceeded
	if jobErr != nil || !result.Success {
		status = types.JobRunFailed
	}
	var errMsg any
	if jobErr != nil {
		errMsg = jobErr.Error()
	}

	res, err := j.store.db.ExecContext(ctx,
		`UPDATE job_runs
		 SET finished_at = ?, status = ?, created_count = ?, sent_count = ?, failure_count = ?, error = ?
		 WHERE id = ?`,
		TS(finishedAt), string(status), result.CreatedCount, result.SentCount,
		len(result.Failures), errMsg, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job run", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job run not found", nil)
	}
	return nil
}

// Recent returns up to limit runs of job, newest first.
func (j *JobRuns) Recent(ctx context.Context, job types.JobName, limit int) ([]types.JobRun, error) {
	var rows []struct {
		ID           int64      `db:"id"`
		Job          string     `db:"job"`
		StartedAt    Timestamp  `db:"started_at"`
		FinishedAt   *Timestamp `db:"finished_at"`
		Status       string     `db:"status"`
		CreatedCount int        `db:"created_count"`
		SentCount    int        `db:"sent_count"`
		FailureCount int        `db:"failure_count"`
		Error        *string    `db:"error"`
	}
	err := j.store.db.SelectContext(ctx, &rows,
		`SELECT id, job, started_at, finished_at, status, created_count, sent_count, failure_count, error
		 FROM job_runs WHERE job = ? ORDER BY started_at DESC, id DESC LIMIT ?`,
		string(job), limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list job runs", err)
	}

	runs := make([]types.JobRun, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, types.JobRun{
			ID:           r.ID,
			Job:          types.JobName(r.Job),
			StartedAt:    r.StartedAt.Time,
			FinishedAt:   timePtr(r.FinishedAt),
			Status:       types.JobRunStatus(r.Status),
			CreatedCount: r.CreatedCount,
			SentCount:    r.SentCount,
			FailureCount: r.FailureCount,
			Error:        r.Error,
		})
	}
	return runs, nil
}

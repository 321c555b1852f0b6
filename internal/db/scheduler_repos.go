package db

import (
	"context"
	"time"

	"scholarwatch/internal/types"
)

// JobRunRepository records each detection job execution in job_runs so
// operators can see when a job last ran and what it produced.
type JobRunRepository struct {
	db DBTX
}

// NewJobRunRepository creates a new JobRunRepository backed by the given
// database connection (pool or transaction).
func NewJobRunRepository(db DBTX) *JobRunRepository {
	return &JobRunRepository{db: db}
}

// Start inserts a running job_runs row and returns its id. startedAt is
// passed in rather than taken from NOW() so runs against a reference time
// are recorded consistently.
func (r *JobRunRepository) Start(ctx context.Context, job types.JobName, startedAt time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_runs (job, started_at, status)
		 VALUES ($1, $2, 'running')
		 RETURNING id`,
		string(job),
		startedAt,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job run", err)
	}
	return id, nil
}

// Finish closes the run with the job's counts. A non-nil jobErr marks the run
// failed and stores its message.
func (r *JobRunRepository) Finish(ctx context.Context, id int64, result types.JobResult, jobErr error, finishedAt time.Time) error {
	status := types.JobRunSucceeded
	var errMsg *string
	if jobErr != nil || !result.Success {
		status = types.JobRunFailed
	}
	if jobErr != nil {
		s := jobErr.Error()
		errMsg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_runs
		 SET finished_at = $2, status = $3, created_count = $4, sent_count = $5,
		     failure_count = $6, error = $7
		 WHERE id = $1`,
		id,
		finishedAt,
		string(status),
		result.CreatedCount,
		result.SentCount,
		len(result.Failures),
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job run", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job run not found", nil)
	}
	return nil
}

// Recent returns up to limit runs of job, newest first.
func (r *JobRunRepository) Recent(ctx context.Context, job types.JobName, limit int) ([]types.JobRun, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, job, started_at, finished_at, status, created_count, sent_count, failure_count, error
		 FROM job_runs
		 WHERE job = $1
		 ORDER BY started_at DESC
		 LIMIT $2`,
		string(job),
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list job runs", err)
	}
	defer rows.Close()

	var runs []types.JobRun
	for rows.Next() {
		var (
			run         types.JobRun
			name, state string
		)
		if err := rows.Scan(&run.ID, &name, &run.StartedAt, &run.FinishedAt, &state,
			&run.CreatedCount, &run.SentCount, &run.FailureCount, &run.Error); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job run", err)
		}
		run.Job = types.JobName(name)
		run.Status = types.JobRunStatus(state)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate job runs", err)
	}
	return runs, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/ilanhub/internal/models"
)

const jobColumns = `id, job_type, payload, dedupe_key, status, attempt_count, max_attempts, last_error,
	next_attempt_at, created_at, updated_at, started_at, completed_at`

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var jobType, status string
	if err := row.Scan(&job.ID, &jobType, &job.Payload, &job.DedupeKey, &status, &job.AttemptCount,
		&job.MaxAttempts, &job.LastError, &job.NextAttemptAt, &job.CreatedAt, &job.UpdatedAt,
		&job.StartedAt, &job.CompletedAt); err != nil {
		return nil, err
	}
	job.Type = models.JobType(jobType)
	job.Status = models.JobStatus(status)
	return &job, nil
}

// EnqueueJob inserts a queued job. A job whose dedupe key matches a job that
// is still queued or running is dropped and EnqueueJob reports false.
func (s *store) EnqueueJob(ctx context.Context, job *models.Job) (bool, error) {
	if job == nil {
		return false, fmt.Errorf("job is nil")
	}
	if job.Type == "" {
		return false, fmt.Errorf("job type is required")
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 3
	}
	if job.Payload == "" {
		job.Payload = "{}"
	}
	if job.NextAttemptAt.IsZero() {
		job.NextAttemptAt = time.Now().UTC()
	}
	row := s.queryRow(ctx,
		`INSERT INTO jobs (job_type, payload, dedupe_key, status, max_attempts, next_attempt_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING
		 RETURNING `+jobColumns,
		string(job.Type), job.Payload, job.DedupeKey, string(models.JobQueued), job.MaxAttempts, s.d.ts(job.NextAttemptAt))
	loaded, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	*job = *loaded
	return true, nil
}

// ClaimJob moves the oldest due job to in_progress. It returns nil, nil when
// nothing is due.
func (s *store) ClaimJob(ctx context.Context, now time.Time) (*models.Job, error) {
	lock := ""
	if s.d == dialectPostgres {
		lock = ` FOR UPDATE SKIP LOCKED`
	}
	row := s.queryRow(ctx,
		`UPDATE jobs
		 SET status = ?,
			 attempt_count = attempt_count + 1,
			 started_at = ?,
			 completed_at = NULL,
			 updated_at = ?
		 WHERE id = (
			 SELECT id
			 FROM jobs
			 WHERE status = ?
			   AND next_attempt_at <= ?
			 ORDER BY next_attempt_at ASC, id ASC
			 LIMIT 1`+lock+`
		 )
		 RETURNING `+jobColumns,
		string(models.JobInProgress), s.d.ts(now), s.d.ts(now), string(models.JobQueued), s.d.ts(now),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *store) CompleteJob(ctx context.Context, id int64, status models.JobStatus, errMsg string, now time.Time) error {
	trimmedErr := strings.TrimSpace(errMsg)
	switch status {
	case models.JobCompleted:
		trimmedErr = ""
	case models.JobFailed:
		if trimmedErr == "" {
			trimmedErr = "job failed"
		}
	default:
		return fmt.Errorf("unsupported terminal status %q", status)
	}
	return s.execAffected(ctx,
		`UPDATE jobs
		 SET status = ?, last_error = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(status), trimmedErr, s.d.ts(now), s.d.ts(now), id, string(models.JobInProgress))
}

// RequeueJob schedules another attempt, or fails the job once its attempts
// are exhausted.
func (s *store) RequeueJob(ctx context.Context, id int64, errMsg string, nextAttemptAt time.Time) error {
	trimmedErr := strings.TrimSpace(errMsg)
	if trimmedErr == "" {
		trimmedErr = "job failed"
	}
	if nextAttemptAt.IsZero() {
		nextAttemptAt = time.Now().UTC()
	}
	now := time.Now().UTC()
	return s.execAffected(ctx,
		`UPDATE jobs
		 SET status = CASE
				 WHEN attempt_count >= max_attempts THEN ?
				 ELSE ?
			 END,
			 last_error = ?,
			 next_attempt_at = CASE
				 WHEN attempt_count >= max_attempts THEN next_attempt_at
				 ELSE ?
			 END,
			 started_at = NULL,
			 completed_at = CASE
				 WHEN attempt_count >= max_attempts THEN COALESCE(?, completed_at)
				 ELSE NULL
			 END,
			 updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(models.JobFailed), string(models.JobQueued), trimmedErr, s.d.ts(nextAttemptAt),
		s.d.ts(now), s.d.ts(now), id, string(models.JobInProgress))
}

func (s *store) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	return scanJob(s.queryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
}

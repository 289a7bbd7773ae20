// Package jobs runs background work (saved-search matching, webhook delivery,
// mail) from a database-backed queue.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/ilanhub/internal/models"
)

const (
	defaultRetryDelay = 5 * time.Second
	defaultMaxRetries = 3
	maxRetryDelay     = 10 * time.Minute
)

// Store is the persistence the queue needs. database.DB satisfies it.
type Store interface {
	EnqueueJob(ctx context.Context, job *models.Job) (bool, error)
	ClaimJob(ctx context.Context, now time.Time) (*models.Job, error)
	CompleteJob(ctx context.Context, id int64, status models.JobStatus, errMsg string, now time.Time) error
	RequeueJob(ctx context.Context, id int64, errMsg string, nextAttemptAt time.Time) error
	GetJob(ctx context.Context, id int64) (*models.Job, error)
}

// Queue persists jobs and their status transitions.
type Queue struct {
	store       Store
	retryDelay  time.Duration
	maxAttempts int
	now         func() time.Time
}

type QueueOptions struct {
	// RetryDelay is the delay before the second attempt; later attempts
	// double it up to ten minutes.
	RetryDelay  time.Duration
	MaxAttempts int
}

func NewQueue(store Store, opts QueueOptions) *Queue {
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxRetries
	}
	return &Queue{
		store:       store,
		retryDelay:  retryDelay,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type EnqueueOptions struct {
	// DedupeKey drops the job if another job with the same key is still
	// queued or running.
	DedupeKey   string
	Delay       time.Duration
	MaxAttempts int
}

// Enqueue stores a job whose payload is the JSON encoding of payload. It
// returns the stored job and false when the job was deduplicated.
func (q *Queue) Enqueue(ctx context.Context, jobType models.JobType, payload any, opts EnqueueOptions) (*models.Job, bool, error) {
	if strings.TrimSpace(string(jobType)) == "" {
		return nil, false, fmt.Errorf("job type is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.maxAttempts
	}
	job := &models.Job{
		Type:          jobType,
		Payload:       string(data),
		DedupeKey:     strings.TrimSpace(opts.DedupeKey),
		Status:        models.JobQueued,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: q.now().Add(opts.Delay),
	}
	created, err := q.store.EnqueueJob(ctx, job)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	return job, created, nil
}

func (q *Queue) Claim(ctx context.Context) (*models.Job, error) {
	return q.store.ClaimJob(ctx, q.now())
}

func (q *Queue) Complete(ctx context.Context, jobID int64) error {
	return q.store.CompleteJob(ctx, jobID, models.JobCompleted, "", q.now())
}

func (q *Queue) Fail(ctx context.Context, jobID int64, runErr error) error {
	return q.store.CompleteJob(ctx, jobID, models.JobFailed, failureMessage(runErr), q.now())
}

// RetryOrFail schedules another attempt with exponential backoff, or fails
// the job when its attempts are used up or runErr is permanent.
func (q *Queue) RetryOrFail(ctx context.Context, job *models.Job, runErr error) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	message := failureMessage(runErr)
	if IsPermanent(runErr) || (job.MaxAttempts > 0 && job.AttemptCount >= job.MaxAttempts) {
		return q.store.CompleteJob(ctx, job.ID, models.JobFailed, message, q.now())
	}
	return q.store.RequeueJob(ctx, job.ID, message, q.now().Add(q.backoff(job.AttemptCount)))
}

func (q *Queue) backoff(attempt int) time.Duration {
	d := q.retryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

// Get returns the job, or nil when it does not exist.
func (q *Queue) Get(ctx context.Context, id int64) (*models.Job, error) {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// Decode unmarshals a job payload.
func Decode[T any](job *models.Job) (T, error) {
	var v T
	if job == nil {
		return v, Permanent(errors.New("job is nil"))
	}
	if err := json.Unmarshal([]byte(job.Payload), &v); err != nil {
		return v, Permanent(fmt.Errorf("decode %s payload: %w", job.Type, err))
	}
	return v, nil
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func failureMessage(err error) string {
	if err == nil {
		return "job failed"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "job failed"
	}
	return msg
}

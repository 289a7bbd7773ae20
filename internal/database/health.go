package database

import (
	"context"
	"time"

	"github.com/odvcencio/ilanhub/internal/models"
)

// JobQueueStats summarizes job queue status for health and observability endpoints.
type JobQueueStats struct {
	Queued         int64
	InProgress     int64
	Failed         int64
	OldestQueuedAt *time.Time
}

// ModerationQueueStats summarizes work waiting for an admin.
type ModerationQueueStats struct {
	PendingListings      int64
	OldestPendingAt      *time.Time
	PendingVerifications int64
}

func (s *store) JobQueueStats(ctx context.Context) (JobQueueStats, error) {
	var stats JobQueueStats
	var oldestQueued any
	err := s.queryRow(ctx,
		`SELECT
			 COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS queued,
			 COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS in_progress,
			 COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed,
			 MIN(CASE WHEN status = ? THEN next_attempt_at END) AS oldest_queued_at
		 FROM jobs`,
		string(models.JobQueued),
		string(models.JobInProgress),
		string(models.JobFailed),
		string(models.JobQueued),
	).Scan(&stats.Queued, &stats.InProgress, &stats.Failed, &oldestQueued)
	if err != nil {
		return JobQueueStats{}, err
	}
	stats.OldestQueuedAt = aggregateTime(oldestQueued)
	return stats, nil
}

func (s *store) ModerationQueueStats(ctx context.Context) (ModerationQueueStats, error) {
	var stats ModerationQueueStats
	var oldest any
	err := s.queryRow(ctx,
		`SELECT COUNT(*), MIN(created_at) FROM listings WHERE status = ?`, models.ListingPending,
	).Scan(&stats.PendingListings, &oldest)
	if err != nil {
		return ModerationQueueStats{}, err
	}
	stats.OldestPendingAt = aggregateTime(oldest)
	if err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM verification_requests WHERE status = ?`, models.VerificationPending,
	).Scan(&stats.PendingVerifications); err != nil {
		return ModerationQueueStats{}, err
	}
	return stats, nil
}

// aggregateTime decodes MIN()/MAX() over a timestamp column. SQLite drops the
// column type on aggregates and hands back the stored text.
func aggregateTime(v any) *time.Time {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case string:
		parsed, err := time.Parse("2006-01-02 15:04:05", x)
		if err != nil {
			return nil
		}
		t = parsed
	case []byte:
		return aggregateTime(string(x))
	default:
		return nil
	}
	t = t.UTC()
	return &t
}

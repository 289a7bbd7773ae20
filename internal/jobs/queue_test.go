package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/models"
)

type matchPayload struct {
	ListingID int64 `json:"listing_id"`
}

func TestQueueEnqueueClaimAndComplete(t *testing.T) {
	db := setupQueueTestDB(t)
	q := NewQueue(db, QueueOptions{MaxAttempts: 2})

	ctx := context.Background()
	job, created, err := q.Enqueue(ctx, models.JobSavedSearchMatch, matchPayload{ListingID: 7}, EnqueueOptions{DedupeKey: "listing:7"})
	if err != nil {
		t.Fatal(err)
	}
	if !created || job.ID == 0 {
		t.Fatalf("expected persisted job, created=%v id=%d", created, job.ID)
	}
	if job.Status != models.JobQueued {
		t.Fatalf("expected queued status, got %q", job.Status)
	}

	claimed, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected to claim job %d, got %+v", job.ID, claimed)
	}
	if claimed.Status != models.JobInProgress {
		t.Fatalf("expected in_progress status, got %q", claimed.Status)
	}
	payload, err := Decode[matchPayload](claimed)
	if err != nil {
		t.Fatal(err)
	}
	if payload.ListingID != 7 {
		t.Fatalf("payload listing id = %d, want 7", payload.ListingID)
	}

	if err := q.Complete(ctx, claimed.ID); err != nil {
		t.Fatal(err)
	}
	status, err := q.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if status == nil || status.Status != models.JobCompleted {
		t.Fatalf("expected completed status, got %+v", status)
	}

	missing, err := q.Get(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("Get(missing) = %+v, %v; want nil, nil", missing, err)
	}
}

func TestQueueDedupesWhileQueued(t *testing.T) {
	db := setupQueueTestDB(t)
	q := NewQueue(db, QueueOptions{})
	ctx := context.Background()

	if _, created, err := q.Enqueue(ctx, models.JobSavedSearchMatch, matchPayload{ListingID: 1}, EnqueueOptions{DedupeKey: "listing:1"}); err != nil || !created {
		t.Fatalf("first enqueue created=%v err=%v", created, err)
	}
	if _, created, err := q.Enqueue(ctx, models.JobSavedSearchMatch, matchPayload{ListingID: 1}, EnqueueOptions{DedupeKey: "listing:1"}); err != nil || created {
		t.Fatalf("duplicate enqueue created=%v err=%v; want deduped", created, err)
	}
	if _, created, err := q.Enqueue(ctx, models.JobSavedSearchMatch, matchPayload{ListingID: 1}, EnqueueOptions{}); err != nil || !created {
		t.Fatalf("enqueue without key created=%v err=%v", created, err)
	}
}

func TestQueueRetryOrFailTransitions(t *testing.T) {
	db := setupQueueTestDB(t)
	q := NewQueue(db, QueueOptions{RetryDelay: 5 * time.Millisecond, MaxAttempts: 2})

	ctx := context.Background()
	job, _, err := q.Enqueue(ctx, models.JobWebhookDeliver, map[string]int64{"webhook_id": 1}, EnqueueOptions{})
	if err != nil {
		t.Fatal(err)
	}

	first, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first == nil {
		t.Fatal("expected first claim")
	}
	if err := q.RetryOrFail(ctx, first, errors.New("temporary")); err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)
	second, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second == nil {
		t.Fatal("expected second claim after retry delay")
	}
	if second.AttemptCount != 2 {
		t.Fatalf("expected attempt_count 2, got %d", second.AttemptCount)
	}
	if err := q.RetryOrFail(ctx, second, errors.New("terminal")); err != nil {
		t.Fatal(err)
	}

	status, err := q.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if status.Status != models.JobFailed {
		t.Fatalf("expected failed status, got %q", status.Status)
	}
	if status.LastError != "terminal" {
		t.Fatalf("expected terminal error message, got %q", status.LastError)
	}
}

func TestQueuePermanentErrorFailsImmediately(t *testing.T) {
	db := setupQueueTestDB(t)
	q := NewQueue(db, QueueOptions{MaxAttempts: 5})
	ctx := context.Background()

	job, _, err := q.Enqueue(ctx, models.JobMailSend, map[string]string{"to": "x"}, EnqueueOptions{})
	if err != nil {
		t.Fatal(err)
	}
	claimed, err := q.Claim(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim = %+v, %v", claimed, err)
	}
	if err := q.RetryOrFail(ctx, claimed, Permanent(errors.New("bad payload"))); err != nil {
		t.Fatal(err)
	}
	status, _ := q.Get(ctx, job.ID)
	if status.Status != models.JobFailed || status.AttemptCount != 1 {
		t.Fatalf("status = %q attempts = %d; want failed after 1", status.Status, status.AttemptCount)
	}
}

func TestQueueBackoffDoubles(t *testing.T) {
	q := NewQueue(nil, QueueOptions{RetryDelay: time.Second})
	want := []time.Duration{time.Second, time.Second, 2 * time.Second, 4 * time.Second}
	for attempt, w := range want {
		if got := q.backoff(attempt); got != w {
			t.Fatalf("backoff(%d) = %v, want %v", attempt, got, w)
		}
	}
	if got := q.backoff(40); got != maxRetryDelay {
		t.Fatalf("backoff(40) = %v, want cap %v", got, maxRetryDelay)
	}
}

func setupQueueTestDB(t *testing.T) database.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.OpenSQLite(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return db
}

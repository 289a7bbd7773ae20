package api

import (
	"net/http"
	"time"
)

type adminHealthResponse struct {
	Status     string                `json:"status"`
	Timestamp  time.Time             `json:"timestamp"`
	Queue      adminHealthQueue      `json:"queue"`
	Moderation adminHealthModeration `json:"moderation"`
	Workers    adminHealthWorkers    `json:"workers"`
	Realtime   adminHealthRealtime   `json:"realtime"`
	Database   adminHealthDatabase   `json:"database"`
	Errors     []string              `json:"errors,omitempty"`
}

type adminHealthQueue struct {
	Depth                 int64   `json:"depth"`
	InProgress            int64   `json:"in_progress"`
	Failed                int64   `json:"failed"`
	OldestQueuedAgeSecond float64 `json:"oldest_queued_age_seconds"`
}

type adminHealthModeration struct {
	PendingListings        int64   `json:"pending_listings"`
	OldestPendingAgeSecond float64 `json:"oldest_pending_age_seconds"`
	PendingVerifications   int64   `json:"pending_verifications"`
}

type adminHealthWorkers struct {
	Configured int `json:"configured"`
	Active     int `json:"active"`
}

type adminHealthRealtime struct {
	Streams int `json:"streams"`
}

type adminHealthDatabase struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
	WaitDurationMS  int64 `json:"wait_duration_ms"`
	MaxIdleClosed   int64 `json:"max_idle_closed"`
	MaxLifetime     int64 `json:"max_lifetime_closed"`
	MaxIdleTime     int64 `json:"max_idle_time_closed"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAdminHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	resp := adminHealthResponse{
		Status:    "ok",
		Timestamp: now,
		Workers:   adminHealthWorkers{Configured: s.workers},
		Realtime:  adminHealthRealtime{Streams: s.realtime.streams()},
	}

	if stats, err := s.db.JobQueueStats(r.Context()); err != nil {
		resp.Errors = append(resp.Errors, "job_queue_stats")
	} else {
		resp.Queue = adminHealthQueue{
			Depth:                 stats.Queued,
			InProgress:            stats.InProgress,
			Failed:                stats.Failed,
			OldestQueuedAgeSecond: ageSeconds(now, stats.OldestQueuedAt),
		}
	}

	if stats, err := s.db.ModerationQueueStats(r.Context()); err != nil {
		resp.Errors = append(resp.Errors, "moderation_queue_stats")
	} else {
		resp.Moderation = adminHealthModeration{
			PendingListings:        stats.PendingListings,
			OldestPendingAgeSecond: ageSeconds(now, stats.OldestPendingAt),
			PendingVerifications:   stats.PendingVerifications,
		}
	}

	stats := s.db.DBStats()
	resp.Database = adminHealthDatabase{
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
		WaitDurationMS:  stats.WaitDuration.Milliseconds(),
		MaxIdleClosed:   stats.MaxIdleClosed,
		MaxLifetime:     stats.MaxLifetimeClosed,
		MaxIdleTime:     stats.MaxIdleTimeClosed,
	}

	resp.Workers.Active = int(resp.Queue.InProgress)
	if len(resp.Errors) > 0 {
		resp.Status = "degraded"
		jsonResponse(w, http.StatusServiceUnavailable, resp)
		return
	}
	jsonResponse(w, http.StatusOK, resp)
}

func ageSeconds(now time.Time, at *time.Time) float64 {
	if at == nil {
		return 0
	}
	age := now.Sub(at.UTC()).Seconds()
	if age < 0 {
		return 0
	}
	return age
}

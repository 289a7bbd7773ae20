package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/jobs"
	"github.com/odvcencio/ilanhub/internal/models"
)

const DefaultListingTTL = 30 * 24 * time.Hour

type ModerationService struct {
	db            database.DB
	listings      *ListingService
	notifications *NotificationService
	webhooks      *WebhookService
	queue         *jobs.Queue
	metrics       *Metrics
	listingTTL    time.Duration
	now           func() time.Time
}

func NewModerationService(db database.DB, listings *ListingService, notifications *NotificationService, webhooks *WebhookService, queue *jobs.Queue, metrics *Metrics, listingTTL time.Duration) *ModerationService {
	if listingTTL <= 0 {
		listingTTL = DefaultListingTTL
	}
	return &ModerationService{
		db:            db,
		listings:      listings,
		notifications: notifications,
		webhooks:      webhooks,
		queue:         queue,
		metrics:       metrics,
		listingTTL:    listingTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// PendingListings is the moderation queue, oldest submission first.
func (s *ModerationService) PendingListings(ctx context.Context, page, perPage int) (*SearchResult, error) {
	return s.listings.search(ctx, database.ListingFilter{
		Statuses: []string{models.ListingPending},
		Sort:     "oldest",
	}, page, perPage)
}

// Approve publishes a pending listing for listingTTL and queues saved-search
// matching for it.
func (s *ModerationService) Approve(ctx context.Context, adminID, id int64) (*models.Listing, error) {
	now := s.now()
	expires := now.Add(s.listingTTL)
	l, err := s.decide(ctx, adminID, id, "listing.approve", "", database.ListingStatusChange{
		Status:      models.ListingActive,
		PublishedAt: &now,
		ExpiresAt:   &expires,
		At:          now,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.moderationDecision("approved")
	logNotifyErr(s.notifications.NotifyListingDecision(ctx, l, adminID), "listing.approve", "listing_id", l.ID)
	if err := s.webhooks.EmitListingEvent(ctx, EventListingApproved, l); err != nil {
		slog.Error("emit listing webhook", "listing_id", l.ID, "event", EventListingApproved, "error", err)
	}
	if _, _, err := s.queue.Enqueue(ctx, models.JobSavedSearchMatch, savedSearchMatchJob{ListingID: l.ID}, jobs.EnqueueOptions{
		DedupeKey: fmt.Sprintf("saved_search.match:%d", l.ID),
	}); err != nil {
		slog.Error("enqueue saved search match", "listing_id", l.ID, "error", err)
	}
	return l, nil
}

// Reject sends a pending listing back to its owner. A reason is required.
func (s *ModerationService) Reject(ctx context.Context, adminID, id int64, reason string) (*models.Listing, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason", "is required")
	}
	reason = clipText(reason, 1000)
	l, err := s.decide(ctx, adminID, id, "listing.reject", reason, database.ListingStatusChange{
		Status:          models.ListingRejected,
		RejectionReason: reason,
		At:              s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.metrics.moderationDecision("rejected")
	logNotifyErr(s.notifications.NotifyListingDecision(ctx, l, adminID), "listing.reject", "listing_id", l.ID)
	if err := s.webhooks.EmitListingEvent(ctx, EventListingRejected, l); err != nil {
		slog.Error("emit listing webhook", "listing_id", l.ID, "event", EventListingRejected, "error", err)
	}
	return l, nil
}

func (s *ModerationService) decide(ctx context.Context, adminID, id int64, action, reason string, change database.ListingStatusChange) (*models.Listing, error) {
	l, err := s.db.GetListing(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if l.Status != models.ListingPending || !CanTransition(l.Status, change.Status) {
		return nil, ErrInvalidTransition
	}
	if err := s.db.ApplyListingDecision(ctx, id, models.ListingPending, change, &models.ModerationAction{
		AdminID:    adminID,
		TargetType: "listing",
		TargetID:   id,
		Action:     action,
		Reason:     reason,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	return s.listings.reload(ctx, id)
}

// Takedown passivates a live listing on an admin's initiative and tells the
// owner why.
func (s *ModerationService) Takedown(ctx context.Context, adminID, id int64, reason string) (*models.Listing, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason", "is required")
	}
	l, err := s.db.GetListing(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if l.Status != models.ListingActive {
		return nil, ErrInvalidTransition
	}
	if err := s.db.ApplyListingDecision(ctx, id, models.ListingActive, database.ListingStatusChange{
		Status: models.ListingPassive,
		At:     s.now(),
	}, &models.ModerationAction{
		AdminID:    adminID,
		TargetType: "listing",
		TargetID:   id,
		Action:     "listing.takedown",
		Reason:     clipText(reason, 1000),
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	if l, err = s.listings.reload(ctx, id); err != nil {
		return nil, err
	}
	s.metrics.moderationDecision("taken_down")
	logNotifyErr(s.notifications.NotifyListingPassivated(ctx, l, adminID), "listing.takedown", "listing_id", l.ID)
	return l, nil
}

// BanUser blocks an account and takes its live listings down.
func (s *ModerationService) BanUser(ctx context.Context, adminID, userID int64, reason string) (*models.User, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason", "is required")
	}
	if userID == adminID {
		return nil, invalid("user_id", "you cannot ban yourself")
	}
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, notFound(err)
	}
	if user.Role == models.RoleAdmin {
		return nil, ErrForbidden
	}
	n, err := s.db.BanUser(ctx, userID, s.now(), &models.ModerationAction{
		AdminID:    adminID,
		TargetType: "user",
		TargetID:   userID,
		Action:     "user.ban",
		Reason:     clipText(reason, 1000),
	})
	if err != nil {
		return nil, notFound(err)
	}
	slog.Info("user banned", "user_id", userID, "admin_id", adminID, "listings_passivated", n)
	user.Status = models.UserStatusBanned
	return user, nil
}

// UnbanUser restores an account. Its listings stay PASSIVE until the owner
// resubmits them.
func (s *ModerationService) UnbanUser(ctx context.Context, adminID, userID int64) (*models.User, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, notFound(err)
	}
	if user.Status != models.UserStatusBanned {
		return nil, ErrInvalidTransition
	}
	if err := s.db.UnbanUser(ctx, userID, &models.ModerationAction{
		AdminID:    adminID,
		TargetType: "user",
		TargetID:   userID,
		Action:     "user.unban",
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	user.Status = models.UserStatusActive
	return user, nil
}

func (s *ModerationService) ListActions(ctx context.Context, targetType string, page, perPage int) ([]models.ModerationAction, error) {
	switch targetType {
	case "", "listing", "user", "verification":
	default:
		return nil, invalid("target_type", "must be listing, user or verification")
	}
	limit, offset := normalizePage(page, perPage, 50, 200)
	return s.db.ListModerationActionsPage(ctx, targetType, limit, offset)
}

func (s *ModerationService) ListUsers(ctx context.Context, query string, page, perPage int) ([]models.User, error) {
	limit, offset := normalizePage(page, perPage, 50, 200)
	return s.db.ListUsersPage(ctx, query, limit, offset)
}

// QueueStats reports moderation backlog for the admin health endpoint.
func (s *ModerationService) QueueStats(ctx context.Context) (database.ModerationQueueStats, error) {
	return s.db.ModerationQueueStats(ctx)
}

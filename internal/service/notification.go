package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/models"
)

// Publisher pushes events to a user's live connections.
type Publisher interface {
	Publish(userID int64, eventType string, payload any)
}

// Notification types.
const (
	NotifyListingApproved      = "listing.approved"
	NotifyListingRejected      = "listing.rejected"
	NotifyListingExpired       = "listing.expired"
	NotifyListingPassivated    = "listing.passivated"
	NotifyMessageReceived      = "message.received"
	NotifySavedSearchMatch     = "saved_search.match"
	NotifyVerificationDecision = "verification.decided"
)

type NotificationService struct {
	db        database.DB
	publisher Publisher
}

func NewNotificationService(db database.DB) *NotificationService {
	return &NotificationService{db: db}
}

// SetPublisher attaches the realtime stream. Nil disables publishing.
func (s *NotificationService) SetPublisher(p Publisher) {
	s.publisher = p
}

func (s *NotificationService) publish(userID int64, eventType string, payload any) {
	if s.publisher == nil || userID <= 0 {
		return
	}
	s.publisher.Publish(userID, eventType, payload)
}

func (s *NotificationService) NotifyListingDecision(ctx context.Context, l *models.Listing, adminID int64) error {
	typ := NotifyListingApproved
	title := fmt.Sprintf("Your listing %q is now live", clipText(l.Title, 80))
	body := ""
	if l.Status == models.ListingRejected {
		typ = NotifyListingRejected
		title = fmt.Sprintf("Your listing %q was rejected", clipText(l.Title, 80))
		body = clipText(l.RejectionReason, 240)
	}
	return s.notify(ctx, []int64{l.OwnerID}, adminID, typ, title, body, listingPath(l.ID), &l.ID)
}

func (s *NotificationService) NotifyListingExpired(ctx context.Context, l *models.Listing) error {
	return s.notify(ctx, []int64{l.OwnerID}, 0, NotifyListingExpired,
		fmt.Sprintf("Your listing %q has expired", clipText(l.Title, 80)),
		"Republish it from your listings page to put it back in front of buyers.",
		listingPath(l.ID), &l.ID)
}

func (s *NotificationService) NotifyListingPassivated(ctx context.Context, l *models.Listing, adminID int64) error {
	return s.notify(ctx, []int64{l.OwnerID}, adminID, NotifyListingPassivated,
		fmt.Sprintf("Your listing %q was taken down", clipText(l.Title, 80)), "",
		listingPath(l.ID), &l.ID)
}

func (s *NotificationService) NotifyMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	recipient := conv.Counterpart(msg.SenderID)
	listingID := conv.ListingID
	return s.notify(ctx, []int64{recipient}, msg.SenderID, NotifyMessageReceived,
		"New message about your listing", clipText(msg.Body, 240),
		fmt.Sprintf("/conversations/%d", conv.ID), &listingID)
}

func (s *NotificationService) NotifySavedSearchMatch(ctx context.Context, search *models.SavedSearch, l *models.Listing) error {
	return s.notify(ctx, []int64{search.UserID}, l.OwnerID, NotifySavedSearchMatch,
		fmt.Sprintf("New listing for %q", clipText(search.Name, 80)),
		clipText(l.Title, 240), listingPath(l.ID), &l.ID)
}

func (s *NotificationService) NotifyVerificationDecision(ctx context.Context, req *models.VerificationRequest, adminID int64) error {
	title := "Your verification was approved"
	if req.Status == models.VerificationRejected {
		title = "Your verification was rejected"
	}
	return s.notify(ctx, []int64{req.UserID}, adminID, NotifyVerificationDecision,
		title, clipText(req.Reason, 240), "/account/verification", nil)
}

func (s *NotificationService) List(ctx context.Context, userID int64, unreadOnly bool, page, perPage int) ([]models.Notification, error) {
	limit, offset := normalizePage(page, perPage, 50, 200)
	return s.db.ListNotificationsPage(ctx, userID, unreadOnly, limit, offset)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.db.CountUnreadNotifications(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id int64) error {
	return notFound(s.db.MarkNotificationRead(ctx, id, userID, time.Now().UTC()))
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) error {
	return s.db.MarkAllNotificationsRead(ctx, userID, time.Now().UTC())
}

func (s *NotificationService) notify(ctx context.Context, recipients []int64, actorID int64, typ, title, body, path string, listingID *int64) error {
	seen := make(map[int64]bool, len(recipients))
	for _, userID := range recipients {
		if userID <= 0 || userID == actorID || seen[userID] {
			continue
		}
		seen[userID] = true
		n := &models.Notification{
			UserID:       userID,
			Type:         typ,
			Title:        title,
			Body:         body,
			ResourcePath: path,
			ListingID:    listingID,
		}
		if actorID > 0 {
			actor := actorID
			n.ActorID = &actor
		}
		if err := s.db.CreateNotification(ctx, n); err != nil {
			return err
		}
		s.publish(userID, "notification.created", n)
	}
	return nil
}

// logNotifyErr keeps a failed notification from failing the operation that
// triggered it.
func logNotifyErr(err error, operation string, attrs ...any) {
	if err == nil {
		return
	}
	slog.Error("notification failed", append([]any{"operation", operation, "error", err}, attrs...)...)
}

func listingPath(id int64) string {
	return fmt.Sprintf("/listings/%d", id)
}

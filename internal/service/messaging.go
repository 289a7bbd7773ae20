package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/models"
)

const maxMessageLength = 4000

type MessagingService struct {
	db            database.DB
	notifications *NotificationService
	webhooks      *WebhookService
	metrics       *Metrics
}

func NewMessagingService(db database.DB, notifications *NotificationService, webhooks *WebhookService, metrics *Metrics) *MessagingService {
	return &MessagingService{db: db, notifications: notifications, webhooks: webhooks, metrics: metrics}
}

// StartConversation opens (or reopens) the buyer's conversation about a live
// listing and sends firstMessage when it is not empty.
func (s *MessagingService) StartConversation(ctx context.Context, buyerID, listingID int64, firstMessage string) (*models.Conversation, *models.Message, error) {
	l, err := s.db.GetListing(ctx, listingID)
	if err != nil {
		return nil, nil, notFound(err)
	}
	if l.Status != models.ListingActive {
		return nil, nil, ErrNotFound
	}
	if l.OwnerID == buyerID {
		return nil, nil, invalid("listing_id", "you cannot message yourself about your own listing")
	}
	conv := &models.Conversation{ListingID: l.ID, BuyerID: buyerID, SellerID: l.OwnerID}
	if err := s.db.GetOrCreateConversation(ctx, conv); err != nil {
		return nil, nil, err
	}
	conv.ListingTitle = l.Title
	if strings.TrimSpace(firstMessage) == "" {
		return conv, nil, nil
	}
	msg, err := s.Send(ctx, buyerID, conv.ID, firstMessage)
	if err != nil {
		return nil, nil, err
	}
	return conv, msg, nil
}

// Send posts a message. Only the buyer and the seller may write.
func (s *MessagingService) Send(ctx context.Context, senderID, conversationID int64, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalid("body", "must not be empty")
	}
	if utf8.RuneCountInString(body) > maxMessageLength {
		return nil, invalid("body", "must be at most 4000 characters")
	}
	conv, err := s.participant(ctx, senderID, conversationID)
	if err != nil {
		return nil, err
	}
	msg := &models.Message{ConversationID: conv.ID, SenderID: senderID, Body: body}
	if err := s.db.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.metrics.messageSent()

	s.notifications.publish(conv.BuyerID, "message.created", msg)
	s.notifications.publish(conv.SellerID, "message.created", msg)
	logNotifyErr(s.notifications.NotifyMessage(ctx, conv, msg), "message.send", "conversation_id", conv.ID)

	if senderID == conv.BuyerID {
		seller, err := s.db.GetUserByID(ctx, conv.SellerID)
		if err == nil && seller.Role == models.RoleCorporate {
			if err := s.webhooks.EmitMessageEvent(ctx, seller.ID, conv, msg); err != nil {
				slog.Error("emit message webhook", "conversation_id", conv.ID, "error", err)
			}
		}
	}
	return msg, nil
}

func (s *MessagingService) ListConversations(ctx context.Context, userID int64, page, perPage int) ([]models.Conversation, error) {
	limit, offset := normalizePage(page, perPage, 30, 100)
	return s.db.ListUserConversations(ctx, userID, limit, offset)
}

func (s *MessagingService) GetConversation(ctx context.Context, userID, conversationID int64) (*models.Conversation, error) {
	return s.participant(ctx, userID, conversationID)
}

// ListMessages pages through a conversation in chronological order.
func (s *MessagingService) ListMessages(ctx context.Context, userID, conversationID int64, page, perPage int) ([]models.Message, error) {
	if _, err := s.participant(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	limit, offset := normalizePage(page, perPage, 50, 200)
	return s.db.ListMessages(ctx, conversationID, limit, offset)
}

// MarkRead marks the counterpart's messages read and returns how many changed.
func (s *MessagingService) MarkRead(ctx context.Context, userID, conversationID int64) (int64, error) {
	if _, err := s.participant(ctx, userID, conversationID); err != nil {
		return 0, err
	}
	return s.db.MarkConversationRead(ctx, conversationID, userID, time.Now().UTC())
}

func (s *MessagingService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.db.CountUnreadMessages(ctx, userID)
}

// participant loads a conversation the user takes part in. Others get
// ErrNotFound so conversation ids cannot be probed.
func (s *MessagingService) participant(ctx context.Context, userID, conversationID int64) (*models.Conversation, error) {
	conv, err := s.db.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, notFound(err)
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotFound
	}
	return conv, nil
}

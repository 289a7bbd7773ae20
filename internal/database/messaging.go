package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/odvcencio/ilanhub/internal/models"
)

// --- Conversations ---

// GetOrCreateConversation fills c.ID for the (listing, buyer) pair, creating
// the conversation when it does not exist yet.
func (s *store) GetOrCreateConversation(ctx context.Context, c *models.Conversation) error {
	return s.queryRow(ctx,
		`INSERT INTO conversations (listing_id, buyer_id, seller_id) VALUES (?, ?, ?)
		 ON CONFLICT(listing_id, buyer_id) DO UPDATE SET seller_id = conversations.seller_id
		 RETURNING id, seller_id, last_message_at, created_at`,
		c.ListingID, c.BuyerID, c.SellerID,
	).Scan(&c.ID, &c.SellerID, &c.LastMessageAt, &c.CreatedAt)
}

func (s *store) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := s.queryRow(ctx,
		`SELECT c.id, c.listing_id, l.title, c.buyer_id, c.seller_id, c.last_message_at, c.created_at
		 FROM conversations c
		 JOIN listings l ON l.id = c.listing_id
		 WHERE c.id = ?`, id).
		Scan(&c.ID, &c.ListingID, &c.ListingTitle, &c.BuyerID, &c.SellerID, &c.LastMessageAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *store) ListUserConversations(ctx context.Context, userID int64, limit, offset int) ([]models.Conversation, error) {
	limit, offset = normalizePage(limit, offset)
	rows, err := s.query(ctx,
		`SELECT c.id, c.listing_id, l.title, c.buyer_id, c.seller_id,
			 COALESCE(NULLIF(cu.display_name, ''), cu.username),
			 (SELECT COUNT(*) FROM messages m
			  WHERE m.conversation_id = c.id AND m.sender_id <> ? AND m.read_at IS NULL),
			 c.last_message_at, c.created_at
		 FROM conversations c
		 JOIN listings l ON l.id = c.listing_id
		 JOIN users cu ON cu.id = CASE WHEN c.buyer_id = ? THEN c.seller_id ELSE c.buyer_id END
		 WHERE c.buyer_id = ? OR c.seller_id = ?
		 ORDER BY c.last_message_at DESC, c.id DESC
		 LIMIT ? OFFSET ?`,
		userID, userID, userID, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.ListingID, &c.ListingTitle, &c.BuyerID, &c.SellerID, &c.CounterpartName,
			&c.UnreadCount, &c.LastMessageAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *store) CreateMessage(ctx context.Context, m *models.Message) error {
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx conn) error {
		err := tx.queryRow(ctx,
			`INSERT INTO messages (conversation_id, sender_id, body, created_at) VALUES (?, ?, ?, ?)
			 RETURNING id`,
			m.ConversationID, m.SenderID, m.Body, tx.d.ts(now),
		).Scan(&m.ID)
		if err != nil {
			return err
		}
		m.CreatedAt = now.Truncate(time.Second)
		return tx.execAffected(ctx,
			`UPDATE conversations SET last_message_at = ? WHERE id = ?`, tx.d.ts(now), m.ConversationID)
	})
}

func (s *store) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error) {
	limit, offset = normalizePage(limit, offset)
	rows, err := s.query(ctx,
		`SELECT id, conversation_id, sender_id, body, read_at, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY id ASC LIMIT ? OFFSET ?`,
		conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.ReadAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkConversationRead marks every message not sent by readerID as read.
func (s *store) MarkConversationRead(ctx context.Context, conversationID, readerID int64, now time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE messages SET read_at = ? WHERE conversation_id = ? AND sender_id <> ? AND read_at IS NULL`,
		s.d.ts(now), conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *store) CountUnreadMessages(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE (c.buyer_id = ? OR c.seller_id = ?) AND m.sender_id <> ? AND m.read_at IS NULL`,
		userID, userID, userID).Scan(&n)
	return n, err
}

// --- Notifications ---

func (s *store) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.queryRow(ctx,
		`INSERT INTO notifications (user_id, actor_id, type, title, body, resource_path, listing_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 RETURNING id, created_at`,
		n.UserID, n.ActorID, n.Type, n.Title, n.Body, n.ResourcePath, n.ListingID,
	).Scan(&n.ID, &n.CreatedAt)
}

func (s *store) ListNotificationsPage(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	limit, offset = normalizePage(limit, offset)
	query := `SELECT id, user_id, actor_id, type, title, body, resource_path, listing_id, read_at, created_at
		 FROM notifications
		 WHERE user_id = ?`
	args := []any{userID}
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.ActorID, &n.Type, &n.Title, &n.Body, &n.ResourcePath,
			&n.ListingID, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *store) CountUnreadNotifications(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL`, userID).Scan(&count)
	return count, err
}

func (s *store) MarkNotificationRead(ctx context.Context, id, userID int64, now time.Time) error {
	_, err := s.exec(ctx,
		`UPDATE notifications SET read_at = ? WHERE id = ? AND user_id = ? AND read_at IS NULL`,
		s.d.ts(now), id, userID)
	return err
}

func (s *store) MarkAllNotificationsRead(ctx context.Context, userID int64, now time.Time) error {
	_, err := s.exec(ctx,
		`UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL`, s.d.ts(now), userID)
	return err
}

// --- Saved searches ---

func scanSavedSearch(row rowScanner) (*models.SavedSearch, error) {
	ss := &models.SavedSearch{}
	if err := row.Scan(&ss.ID, &ss.UserID, &ss.Name, &ss.QueryJSON, &ss.Alert, &ss.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ss.QueryJSON), &ss.Query); err != nil {
		return nil, fmt.Errorf("decode saved search %d: %w", ss.ID, err)
	}
	return ss, nil
}

func (s *store) CreateSavedSearch(ctx context.Context, ss *models.SavedSearch) error {
	b, err := json.Marshal(ss.Query)
	if err != nil {
		return err
	}
	ss.QueryJSON = string(b)
	return s.queryRow(ctx,
		`INSERT INTO saved_searches (user_id, name, query_json, alert) VALUES (?, ?, ?, ?)
		 RETURNING id, created_at`,
		ss.UserID, ss.Name, ss.QueryJSON, ss.Alert,
	).Scan(&ss.ID, &ss.CreatedAt)
}

func (s *store) GetSavedSearch(ctx context.Context, userID, id int64) (*models.SavedSearch, error) {
	return scanSavedSearch(s.queryRow(ctx,
		`SELECT id, user_id, name, query_json, alert, created_at FROM saved_searches WHERE user_id = ? AND id = ?`,
		userID, id))
}

func (s *store) ListSavedSearches(ctx context.Context, userID int64) ([]models.SavedSearch, error) {
	rows, err := s.query(ctx,
		`SELECT id, user_id, name, query_json, alert, created_at FROM saved_searches
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.SavedSearch
	for rows.Next() {
		ss, err := scanSavedSearch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ss)
	}
	return out, rows.Err()
}

func (s *store) CountSavedSearches(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM saved_searches WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

func (s *store) DeleteSavedSearch(ctx context.Context, userID, id int64) error {
	return s.execAffected(ctx, `DELETE FROM saved_searches WHERE user_id = ? AND id = ?`, userID, id)
}

// ListAlertingSavedSearches pages through alerting searches by id (keyset).
func (s *store) ListAlertingSavedSearches(ctx context.Context, afterID int64, limit int) ([]models.SavedSearch, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.query(ctx,
		`SELECT id, user_id, name, query_json, alert, created_at FROM saved_searches
		 WHERE alert = TRUE AND id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.SavedSearch
	for rows.Next() {
		ss, err := scanSavedSearch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ss)
	}
	return out, rows.Err()
}

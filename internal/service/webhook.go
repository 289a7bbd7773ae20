package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/jobs"
	"github.com/odvcencio/ilanhub/internal/models"
)

// Webhook events a dealer can subscribe to.
const (
	EventListingApproved = "listing.approved"
	EventListingRejected = "listing.rejected"
	EventListingExpired  = "listing.expired"
	EventMessageReceived = "message.received"
	EventPing            = "ping"
)

var knownWebhookEvents = map[string]bool{
	"*":                  true,
	EventListingApproved: true,
	EventListingRejected: true,
	EventListingExpired:  true,
	EventMessageReceived: true,
}

type WebhookService struct {
	db           database.DB
	queue        *jobs.Queue
	client       *http.Client
	retryBase    time.Duration
	allowPrivate atomic.Bool
}

func NewWebhookService(db database.DB, queue *jobs.Queue) *WebhookService {
	s := &WebhookService{
		db:        db,
		queue:     queue,
		retryBase: time.Second,
	}
	s.client = newWebhookClient(s.allowPrivate.Load)
	return s
}

// AllowPrivateTargets lets hooks point at loopback and private networks.
// Only development setups that run the receiver beside the API need it.
func (s *WebhookService) AllowPrivateTargets(allow bool) {
	s.allowPrivate.Store(allow)
}

func (s *WebhookService) CreateWebhook(ctx context.Context, owner *models.User, hook *models.Webhook) error {
	if owner.Role != models.RoleCorporate && owner.Role != models.RoleAdmin {
		return ErrForbidden
	}
	hook.UserID = owner.ID
	hook.URL = strings.TrimSpace(hook.URL)
	if hook.URL == "" {
		return invalid("url", "is required")
	}
	u, err := url.Parse(hook.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("url", "must be a valid HTTP or HTTPS URL")
	}
	if !s.allowPrivate.Load() {
		if err := checkWebhookHost(u.Hostname()); err != nil {
			return invalid("url", "must not point at a private or loopback address")
		}
	}
	hook.Events = normalizeWebhookEvents(hook.Events)
	for _, e := range hook.Events {
		if !knownWebhookEvents[e] {
			return invalid("events", fmt.Sprintf("unknown event %q", e))
		}
	}
	hook.EventsCSV = strings.Join(hook.Events, ",")
	if err := s.db.CreateWebhook(ctx, hook); err != nil {
		return err
	}
	hook.Events = parseWebhookEvents(hook.EventsCSV)
	return nil
}

func (s *WebhookService) GetWebhook(ctx context.Context, userID, webhookID int64) (*models.Webhook, error) {
	hook, err := s.db.GetWebhook(ctx, userID, webhookID)
	if err != nil {
		return nil, notFound(err)
	}
	hook.Events = parseWebhookEvents(hook.EventsCSV)
	return hook, nil
}

func (s *WebhookService) ListWebhooks(ctx context.Context, userID int64) ([]models.Webhook, error) {
	hooks, err := s.db.ListWebhooks(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range hooks {
		hooks[i].Events = parseWebhookEvents(hooks[i].EventsCSV)
	}
	return hooks, nil
}

func (s *WebhookService) DeleteWebhook(ctx context.Context, userID, webhookID int64) error {
	return notFound(s.db.DeleteWebhook(ctx, userID, webhookID))
}

func (s *WebhookService) ListDeliveries(ctx context.Context, userID, webhookID int64, page, perPage int) ([]models.WebhookDelivery, error) {
	if _, err := s.GetWebhook(ctx, userID, webhookID); err != nil {
		return nil, err
	}
	limit, offset := normalizePage(page, perPage, 50, 200)
	return s.db.ListWebhookDeliveriesPage(ctx, webhookID, limit, offset)
}

func (s *WebhookService) Redeliver(ctx context.Context, userID, webhookID, deliveryID int64) (*models.WebhookDelivery, error) {
	hook, err := s.GetWebhook(ctx, userID, webhookID)
	if err != nil {
		return nil, err
	}
	prev, err := s.db.GetWebhookDelivery(ctx, webhookID, deliveryID)
	if err != nil {
		return nil, notFound(err)
	}
	return s.deliverWithRetry(ctx, hook, prev.Event, []byte(prev.RequestBody), &prev.ID)
}

func (s *WebhookService) Ping(ctx context.Context, userID, webhookID int64) (*models.WebhookDelivery, error) {
	hook, err := s.GetWebhook(ctx, userID, webhookID)
	if err != nil {
		return nil, err
	}
	body, _ := json.Marshal(map[string]any{
		"hook_id":    hook.ID,
		"events":     hook.Events,
		"active":     hook.Active,
		"emitted_at": time.Now().UTC().Format(time.RFC3339),
	})
	return s.deliverWithRetry(ctx, hook, EventPing, body, nil)
}

func (s *WebhookService) EmitListingEvent(ctx context.Context, event string, l *models.Listing) error {
	return s.emit(ctx, l.OwnerID, event, map[string]any{
		"event": event,
		"listing": map[string]any{
			"id":               l.ID,
			"title":            l.Title,
			"status":           l.Status,
			"price":            l.Price,
			"currency":         l.Currency,
			"category_id":      l.CategoryID,
			"rejection_reason": l.RejectionReason,
			"published_at":     l.PublishedAt,
			"expires_at":       l.ExpiresAt,
		},
	})
}

func (s *WebhookService) EmitMessageEvent(ctx context.Context, sellerID int64, conv *models.Conversation, msg *models.Message) error {
	return s.emit(ctx, sellerID, EventMessageReceived, map[string]any{
		"event": EventMessageReceived,
		"conversation": map[string]any{
			"id":         conv.ID,
			"listing_id": conv.ListingID,
			"buyer_id":   conv.BuyerID,
		},
		"message": map[string]any{
			"id":         msg.ID,
			"sender_id":  msg.SenderID,
			"body":       msg.Body,
			"created_at": msg.CreatedAt,
		},
	})
}

type webhookDeliveryJob struct {
	WebhookID int64           `json:"webhook_id"`
	OwnerID   int64           `json:"owner_id"`
	Event     string          `json:"event"`
	Body      json.RawMessage `json:"body"`
}

// emit fans an event out to the owner's matching hooks. Each hook gets its
// own delivery job so a slow endpoint does not hold up the others.
func (s *WebhookService) emit(ctx context.Context, ownerID int64, event string, payload any) error {
	hooks, err := s.db.ListWebhooks(ctx, ownerID)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	for i := range hooks {
		h := hooks[i]
		if !h.Active || !webhookEventMatches(h.EventsCSV, event) {
			continue
		}
		if s.queue == nil {
			// Keep dispatching to other webhooks.
			_, _ = s.deliverWithRetry(ctx, &h, event, body, nil)
			continue
		}
		job := webhookDeliveryJob{WebhookID: h.ID, OwnerID: ownerID, Event: event, Body: body}
		if _, _, err := s.queue.Enqueue(ctx, models.JobWebhookDeliver, job, jobs.EnqueueOptions{MaxAttempts: 1}); err != nil {
			return fmt.Errorf("enqueue webhook delivery: %w", err)
		}
	}
	return nil
}

// HandleDeliveryJob runs a queued webhook.deliver job. Retries happen inside
// deliverWithRetry, so the job itself is single-attempt.
func (s *WebhookService) HandleDeliveryJob(ctx context.Context, job *models.Job) error {
	p, err := jobs.Decode[webhookDeliveryJob](job)
	if err != nil {
		return err
	}
	hook, err := s.db.GetWebhook(ctx, p.OwnerID, p.WebhookID)
	if err != nil {
		return jobs.Permanent(fmt.Errorf("load webhook %d: %w", p.WebhookID, notFound(err)))
	}
	if !hook.Active {
		return nil
	}
	_, err = s.deliverWithRetry(ctx, hook, p.Event, p.Body, nil)
	return err
}

func (s *WebhookService) deliverWithRetry(ctx context.Context, hook *models.Webhook, event string, body []byte, redeliveryOf *int64) (*models.WebhookDelivery, error) {
	const maxAttempts = 3
	deliveryUID := uuid.NewString()
	var last *models.WebhookDelivery

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		statusCode := 0
		respBody := ""
		errText := ""
		success := false

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
		if err != nil {
			errText = err.Error()
		} else {
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("User-Agent", "ilanhub-webhook/1.0")
			req.Header.Set("X-Ilanhub-Event", event)
			req.Header.Set("X-Ilanhub-Delivery", deliveryUID)
			if hook.Secret != "" {
				req.Header.Set("X-Ilanhub-Signature-256", signBody(hook.Secret, body))
			}

			resp, err := s.client.Do(req)
			if err != nil {
				errText = err.Error()
			} else {
				statusCode = resp.StatusCode
				respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 32*1024))
				resp.Body.Close()
				respBody = string(respBytes)
				success = statusCode >= 200 && statusCode < 300
				if !success {
					errText = fmt.Sprintf("unexpected status code %d", statusCode)
				}
			}
		}

		delivery := &models.WebhookDelivery{
			WebhookID:      hook.ID,
			Event:          event,
			DeliveryUID:    deliveryUID,
			Attempt:        attempt,
			StatusCode:     statusCode,
			Success:        success,
			Error:          errText,
			RequestBody:    string(body),
			ResponseBody:   respBody,
			DurationMS:     time.Since(start).Milliseconds(),
			RedeliveryOfID: redeliveryOf,
		}
		if err := s.db.CreateWebhookDelivery(ctx, delivery); err != nil {
			return nil, err
		}
		last = delivery
		if success {
			return delivery, nil
		}
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return last, ctx.Err()
			case <-time.After(s.retryBase * time.Duration(1<<uint(attempt-1))):
			}
		}
	}

	return last, fmt.Errorf("delivery failed after retries: %s", last.Error)
}

func normalizeWebhookEvents(events []string) []string {
	seen := make(map[string]bool, len(events))
	out := make([]string, 0, len(events))
	for _, e := range events {
		e = strings.TrimSpace(strings.ToLower(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func parseWebhookEvents(csv string) []string {
	return normalizeWebhookEvents(strings.Split(csv, ","))
}

func webhookEventMatches(eventsCSV, event string) bool {
	event = strings.TrimSpace(strings.ToLower(event))
	for _, e := range parseWebhookEvents(eventsCSV) {
		if e == "*" || e == event {
			return true
		}
	}
	return false
}

func signBody(secret string, body []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return "sha256=" + hex.EncodeToString(m.Sum(nil))
}

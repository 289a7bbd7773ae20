package database

import (
	"context"

	"github.com/odvcencio/ilanhub/internal/models"
)

const webhookColumns = `id, user_id, url, secret, events_csv, active, created_at, updated_at`

func scanWebhook(row rowScanner) (*models.Webhook, error) {
	h := &models.Webhook{}
	if err := row.Scan(&h.ID, &h.UserID, &h.URL, &h.Secret, &h.EventsCSV, &h.Active, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *store) CreateWebhook(ctx context.Context, hook *models.Webhook) error {
	return s.queryRow(ctx,
		`INSERT INTO webhooks (user_id, url, secret, events_csv, active) VALUES (?, ?, ?, ?, ?)
		 RETURNING id, created_at, updated_at`,
		hook.UserID, hook.URL, hook.Secret, hook.EventsCSV, hook.Active,
	).Scan(&hook.ID, &hook.CreatedAt, &hook.UpdatedAt)
}

func (s *store) GetWebhook(ctx context.Context, userID, id int64) (*models.Webhook, error) {
	return scanWebhook(s.queryRow(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE user_id = ? AND id = ?`, userID, id))
}

func (s *store) ListWebhooks(ctx context.Context, userID int64) ([]models.Webhook, error) {
	rows, err := s.query(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Webhook
	for rows.Next() {
		h, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

func (s *store) DeleteWebhook(ctx context.Context, userID, id int64) error {
	return s.execAffected(ctx, `DELETE FROM webhooks WHERE user_id = ? AND id = ?`, userID, id)
}

func (s *store) CreateWebhookDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	return s.queryRow(ctx,
		`INSERT INTO webhook_deliveries (
			 webhook_id, event, delivery_uid, attempt, status_code, success, error,
			 request_body, response_body, duration_ms, redelivery_of_id
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id, created_at`,
		d.WebhookID, d.Event, d.DeliveryUID, d.Attempt, d.StatusCode, d.Success, d.Error,
		d.RequestBody, d.ResponseBody, d.DurationMS, d.RedeliveryOfID,
	).Scan(&d.ID, &d.CreatedAt)
}

const deliveryColumns = `id, webhook_id, event, delivery_uid, attempt, status_code, success, error,
	request_body, response_body, duration_ms, redelivery_of_id, created_at`

func scanDelivery(row rowScanner) (*models.WebhookDelivery, error) {
	d := &models.WebhookDelivery{}
	if err := row.Scan(&d.ID, &d.WebhookID, &d.Event, &d.DeliveryUID, &d.Attempt, &d.StatusCode, &d.Success,
		&d.Error, &d.RequestBody, &d.ResponseBody, &d.DurationMS, &d.RedeliveryOfID, &d.CreatedAt); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *store) GetWebhookDelivery(ctx context.Context, webhookID, deliveryID int64) (*models.WebhookDelivery, error) {
	return scanDelivery(s.queryRow(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE webhook_id = ? AND id = ?`, webhookID, deliveryID))
}

func (s *store) ListWebhookDeliveriesPage(ctx context.Context, webhookID int64, limit, offset int) ([]models.WebhookDelivery, error) {
	limit, offset = normalizePage(limit, offset)
	rows, err := s.query(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE webhook_id = ?
		 ORDER BY id DESC LIMIT ? OFFSET ?`, webhookID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

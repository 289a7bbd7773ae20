package database

import (
	"context"

	"github.com/odvcencio/ilanhub/internal/models"
)

// --- Verification ---

const verificationColumns = `id, user_id, kind, status, national_id, full_name, birth_year, tax_number, tax_office,
	trade_name, document_key, reviewer_id, reason, created_at, reviewed_at`

func scanVerification(row rowScanner) (*models.VerificationRequest, error) {
	r := &models.VerificationRequest{}
	if err := row.Scan(&r.ID, &r.UserID, &r.Kind, &r.Status, &r.NationalID, &r.FullName, &r.BirthYear,
		&r.TaxNumber, &r.TaxOffice, &r.TradeName, &r.DocumentKey, &r.ReviewerID, &r.Reason, &r.CreatedAt,
		&r.ReviewedAt); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *store) CreateVerificationRequest(ctx context.Context, r *models.VerificationRequest) error {
	if r.Status == "" {
		r.Status = models.VerificationPending
	}
	return s.queryRow(ctx,
		`INSERT INTO verification_requests (
			 user_id, kind, status, national_id, full_name, birth_year, tax_number, tax_office, trade_name, document_key
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id, created_at`,
		r.UserID, r.Kind, r.Status, r.NationalID, r.FullName, r.BirthYear, r.TaxNumber, r.TaxOffice, r.TradeName, r.DocumentKey,
	).Scan(&r.ID, &r.CreatedAt)
}

func (s *store) GetVerificationRequest(ctx context.Context, id int64) (*models.VerificationRequest, error) {
	return scanVerification(s.queryRow(ctx,
		`SELECT `+verificationColumns+` FROM verification_requests WHERE id = ?`, id))
}

func (s *store) GetPendingVerificationRequest(ctx context.Context, userID int64, kind string) (*models.VerificationRequest, error) {
	return scanVerification(s.queryRow(ctx,
		`SELECT `+verificationColumns+` FROM verification_requests WHERE user_id = ? AND kind = ? AND status = ?`,
		userID, kind, models.VerificationPending))
}

func (s *store) ListUserVerificationRequests(ctx context.Context, userID int64) ([]models.VerificationRequest, error) {
	rows, err := s.query(ctx,
		`SELECT `+verificationColumns+` FROM verification_requests WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVerifications(rows)
}

func (s *store) ListVerificationRequestsByStatus(ctx context.Context, status string, limit, offset int) ([]models.VerificationRequest, error) {
	limit, offset = normalizePage(limit, offset)
	rows, err := s.query(ctx,
		`SELECT `+verificationColumns+` FROM verification_requests WHERE status = ?
		 ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVerifications(rows)
}

func scanVerifications(rows interface {
	rowScanner
	Next() bool
	Err() error
}) ([]models.VerificationRequest, error) {
	var out []models.VerificationRequest
	for rows.Next() {
		r, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// DecideVerificationRequest records the reviewer's decision on a pending
// request. It returns sql.ErrNoRows when the request was already decided.
func (c conn) DecideVerificationRequest(ctx context.Context, r *models.VerificationRequest) error {
	return c.execAffected(ctx,
		`UPDATE verification_requests
		 SET status = ?, reviewer_id = ?, reason = ?, reviewed_at = ?
		 WHERE id = ? AND status = ?`,
		r.Status, r.ReviewerID, r.Reason, c.d.tsPtr(r.ReviewedAt), r.ID, models.VerificationPending)
}

// --- Moderation log ---

func (c conn) CreateModerationAction(ctx context.Context, a *models.ModerationAction) error {
	return c.queryRow(ctx,
		`INSERT INTO moderation_actions (admin_id, target_type, target_id, action, reason) VALUES (?, ?, ?, ?, ?)
		 RETURNING id, created_at`,
		a.AdminID, a.TargetType, a.TargetID, a.Action, a.Reason,
	).Scan(&a.ID, &a.CreatedAt)
}

func (s *store) ListModerationActionsPage(ctx context.Context, targetType string, limit, offset int) ([]models.ModerationAction, error) {
	limit, offset = normalizePage(limit, offset)
	query := `SELECT id, admin_id, target_type, target_id, action, reason, created_at FROM moderation_actions`
	var args []any
	if targetType != "" {
		query += ` WHERE target_type = ?`
		args = append(args, targetType)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ModerationAction
	for rows.Next() {
		var a models.ModerationAction
		if err := rows.Scan(&a.ID, &a.AdminID, &a.TargetType, &a.TargetID, &a.Action, &a.Reason, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Content pages ---

const pageColumns = `id, slug, title, body, published, created_at, updated_at`

func scanPage(row rowScanner) (*models.Page, error) {
	p := &models.Page{}
	if err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.Body, &p.Published, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *store) CreatePage(ctx context.Context, p *models.Page) error {
	return s.queryRow(ctx,
		`INSERT INTO pages (slug, title, body, published) VALUES (?, ?, ?, ?)
		 RETURNING id, created_at, updated_at`,
		p.Slug, p.Title, p.Body, p.Published,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (s *store) UpdatePage(ctx context.Context, p *models.Page) error {
	return s.execAffected(ctx,
		`UPDATE pages SET slug = ?, title = ?, body = ?, published = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		p.Slug, p.Title, p.Body, p.Published, p.ID)
}

func (s *store) DeletePage(ctx context.Context, id int64) error {
	return s.execAffected(ctx, `DELETE FROM pages WHERE id = ?`, id)
}

func (s *store) GetPage(ctx context.Context, id int64) (*models.Page, error) {
	return scanPage(s.queryRow(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = ?`, id))
}

func (s *store) GetPageBySlug(ctx context.Context, slug string) (*models.Page, error) {
	return scanPage(s.queryRow(ctx, `SELECT `+pageColumns+` FROM pages WHERE slug = ?`, slug))
}

func (s *store) ListPages(ctx context.Context, publishedOnly bool) ([]models.Page, error) {
	query := `SELECT ` + pageColumns + ` FROM pages`
	if publishedOnly {
		query += ` WHERE published = TRUE`
	}
	query += ` ORDER BY slug`
	rows, err := s.query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

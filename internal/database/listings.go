package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odvcencio/ilanhub/internal/models"
)

const listingSelect = `SELECT l.id, l.owner_id, COALESCE(NULLIF(u.display_name, ''), u.username), u.role,
	l.category_id, l.title, l.description, l.price, l.currency, l.city, l.district, l.status,
	l.attributes_json, l.vehicle_version_id, l.search_text, l.view_count, l.favorite_count,
	l.rejection_reason, l.created_at, l.updated_at, l.published_at, l.expires_at
	FROM listings l
	JOIN users u ON u.id = l.owner_id`

func scanListing(row rowScanner) (*models.Listing, error) {
	l := &models.Listing{}
	var attrsJSON string
	if err := row.Scan(&l.ID, &l.OwnerID, &l.OwnerName, &l.OwnerRole, &l.CategoryID, &l.Title, &l.Description,
		&l.Price, &l.Currency, &l.City, &l.District, &l.Status, &attrsJSON, &l.VehicleVersionID, &l.SearchText,
		&l.ViewCount, &l.FavoriteCount, &l.RejectionReason, &l.CreatedAt, &l.UpdatedAt, &l.PublishedAt, &l.ExpiresAt); err != nil {
		return nil, err
	}
	if attrsJSON != "" && attrsJSON != "{}" {
		if err := json.Unmarshal([]byte(attrsJSON), &l.Attributes); err != nil {
			return nil, fmt.Errorf("decode listing %d attributes: %w", l.ID, err)
		}
	}
	return l, nil
}

func scanListings(rows interface {
	rowScanner
	Next() bool
	Err() error
}) ([]models.Listing, error) {
	var out []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func encodeAttributes(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeListingAttributes(ctx context.Context, tx conn, listingID int64, attrs map[string]string) error {
	if _, err := tx.exec(ctx, `DELETE FROM listing_attributes WHERE listing_id = ?`, listingID); err != nil {
		return err
	}
	for k, v := range attrs {
		if _, err := tx.exec(ctx,
			`INSERT INTO listing_attributes (listing_id, key, value) VALUES (?, ?, ?)`, listingID, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *store) CreateListing(ctx context.Context, l *models.Listing) error {
	attrs, err := encodeAttributes(l.Attributes)
	if err != nil {
		return err
	}
	if l.Status == "" {
		l.Status = models.ListingPending
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx conn) error {
		err := tx.queryRow(ctx,
			`INSERT INTO listings (
				 owner_id, category_id, title, description, price, currency, city, district, status,
				 attributes_json, vehicle_version_id, search_text, created_at, updated_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 RETURNING id`,
			l.OwnerID, l.CategoryID, l.Title, l.Description, l.Price, l.Currency, l.City, l.District, l.Status,
			attrs, l.VehicleVersionID, l.SearchText, tx.d.ts(now), tx.d.ts(now),
		).Scan(&l.ID)
		if err != nil {
			return err
		}
		l.CreatedAt = now.Truncate(time.Second)
		l.UpdatedAt = l.CreatedAt
		return writeListingAttributes(ctx, tx, l.ID, l.Attributes)
	})
}

// UpdateListing rewrites the editable fields and status. It only applies
// while the stored status still equals fromStatus.
func (s *store) UpdateListing(ctx context.Context, l *models.Listing, fromStatus string) error {
	attrs, err := encodeAttributes(l.Attributes)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx conn) error {
		err := tx.execAffected(ctx,
			`UPDATE listings
			 SET category_id = ?, title = ?, description = ?, price = ?, currency = ?, city = ?, district = ?,
				 status = ?, attributes_json = ?, vehicle_version_id = ?, search_text = ?, rejection_reason = ?,
				 updated_at = ?
			 WHERE id = ? AND status = ?`,
			l.CategoryID, l.Title, l.Description, l.Price, l.Currency, l.City, l.District,
			l.Status, attrs, l.VehicleVersionID, l.SearchText, l.RejectionReason, tx.d.ts(now), l.ID, fromStatus)
		if err != nil {
			return err
		}
		l.UpdatedAt = now.Truncate(time.Second)
		return writeListingAttributes(ctx, tx, l.ID, l.Attributes)
	})
}

// UpdateListingStatus moves a listing out of status from. It returns
// sql.ErrNoRows when the listing is gone or no longer in that status.
func (c conn) UpdateListingStatus(ctx context.Context, id int64, from string, change ListingStatusChange) error {
	at := change.At
	if at.IsZero() {
		at = time.Now()
	}
	return c.execAffected(ctx,
		`UPDATE listings
		 SET status = ?,
			 rejection_reason = ?,
			 published_at = COALESCE(?, published_at),
			 expires_at = COALESCE(?, expires_at),
			 updated_at = ?
		 WHERE id = ? AND status = ?`,
		change.Status, change.RejectionReason, c.d.tsPtr(change.PublishedAt), c.d.tsPtr(change.ExpiresAt),
		c.d.ts(at), id, from)
}

func (s *store) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	return scanListing(s.queryRow(ctx, listingSelect+` WHERE l.id = ?`, id))
}

func (s *store) DeleteListing(ctx context.Context, id int64) error {
	return s.execAffected(ctx, `DELETE FROM listings WHERE id = ?`, id)
}

func listingWhere(f ListingFilter) (string, []any) {
	var clauses []string
	var args []any
	if len(f.Statuses) > 0 {
		clauses = append(clauses, `l.status IN (`+placeholders(len(f.Statuses))+`)`)
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	if len(f.CategoryIDs) > 0 {
		clauses = append(clauses, `l.category_id IN (`+placeholders(len(f.CategoryIDs))+`)`)
		for _, id := range f.CategoryIDs {
			args = append(args, id)
		}
	}
	for _, term := range f.TextTerms {
		clauses = append(clauses, `l.search_text LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(term))
	}
	if f.PriceMin != nil {
		clauses = append(clauses, `l.price >= ?`)
		args = append(args, *f.PriceMin)
	}
	if f.PriceMax != nil {
		clauses = append(clauses, `l.price <= ?`)
		args = append(args, *f.PriceMax)
	}
	if f.City != "" {
		clauses = append(clauses, `l.city = ?`)
		args = append(args, f.City)
	}
	if f.SellerRole != "" {
		clauses = append(clauses, `u.role = ?`)
		args = append(args, f.SellerRole)
	}
	if f.OwnerID != nil {
		clauses = append(clauses, `l.owner_id = ?`)
		args = append(args, *f.OwnerID)
	}
	if f.ModelID != nil {
		clauses = append(clauses, `l.vehicle_version_id IN (SELECT v.id FROM vehicle_versions v WHERE v.model_id = ?)`)
		args = append(args, *f.ModelID)
	}
	if f.BrandID != nil {
		clauses = append(clauses, `l.vehicle_version_id IN (
			SELECT v.id FROM vehicle_versions v JOIN vehicle_models m ON m.id = v.model_id WHERE m.brand_id = ?)`)
		args = append(args, *f.BrandID)
	}
	keys := make([]string, 0, len(f.Attributes))
	for k := range f.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		clauses = append(clauses, `EXISTS (
			SELECT 1 FROM listing_attributes a WHERE a.listing_id = l.id AND a.key = ? AND a.value = ?)`)
		args = append(args, k, f.Attributes[k])
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(clauses, ` AND `), args
}

func listingOrder(sortKey string) string {
	switch sortKey {
	case "price_asc":
		return ` ORDER BY l.price ASC, l.id DESC`
	case "price_desc":
		return ` ORDER BY l.price DESC, l.id DESC`
	case "oldest":
		return ` ORDER BY l.created_at ASC, l.id ASC`
	default:
		return ` ORDER BY COALESCE(l.published_at, l.created_at) DESC, l.id DESC`
	}
}

func (s *store) SearchListings(ctx context.Context, f ListingFilter) ([]models.Listing, error) {
	limit, offset := normalizePage(f.Limit, f.Offset)
	where, args := listingWhere(f)
	args = append(args, limit, offset)
	rows, err := s.query(ctx, listingSelect+where+listingOrder(f.Sort)+` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListings(rows)
}

func (s *store) CountListings(ctx context.Context, f ListingFilter) (int, error) {
	where, args := listingWhere(f)
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM listings l JOIN users u ON u.id = l.owner_id`+where, args...).Scan(&n)
	return n, err
}

func (s *store) IncrementListingViews(ctx context.Context, id int64) error {
	_, err := s.exec(ctx, `UPDATE listings SET view_count = view_count + 1 WHERE id = ?`, id)
	return err
}

func (s *store) ListDueExpiredListings(ctx context.Context, now time.Time, limit int) ([]models.Listing, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.query(ctx,
		listingSelect+` WHERE l.status = ? AND l.expires_at IS NOT NULL AND l.expires_at <= ?
		 ORDER BY l.expires_at, l.id LIMIT ?`,
		models.ListingActive, s.d.ts(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListings(rows)
}

func (c conn) PassivateUserListings(ctx context.Context, ownerID int64, now time.Time) (int64, error) {
	res, err := c.exec(ctx,
		`UPDATE listings SET status = ?, updated_at = ? WHERE owner_id = ? AND status = ?`,
		models.ListingPassive, c.d.ts(now), ownerID, models.ListingActive)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Photos ---

func (s *store) CreateListingPhoto(ctx context.Context, p *models.ListingPhoto) error {
	return s.queryRow(ctx,
		`INSERT INTO listing_photos (listing_id, object_key, content_type, size_bytes, sort_order)
		 VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(sort_order), 0) + 1 FROM listing_photos WHERE listing_id = ?))
		 RETURNING id, sort_order, created_at`,
		p.ListingID, p.ObjectKey, p.ContentType, p.SizeBytes, p.ListingID,
	).Scan(&p.ID, &p.SortOrder, &p.CreatedAt)
}

func (s *store) ListListingPhotos(ctx context.Context, listingID int64) ([]models.ListingPhoto, error) {
	rows, err := s.query(ctx,
		`SELECT id, listing_id, object_key, content_type, size_bytes, sort_order, created_at
		 FROM listing_photos WHERE listing_id = ? ORDER BY sort_order, id`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ListingPhoto
	for rows.Next() {
		var p models.ListingPhoto
		if err := rows.Scan(&p.ID, &p.ListingID, &p.ObjectKey, &p.ContentType, &p.SizeBytes, &p.SortOrder, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *store) GetListingPhoto(ctx context.Context, listingID, photoID int64) (*models.ListingPhoto, error) {
	p := &models.ListingPhoto{}
	err := s.queryRow(ctx,
		`SELECT id, listing_id, object_key, content_type, size_bytes, sort_order, created_at
		 FROM listing_photos WHERE listing_id = ? AND id = ?`, listingID, photoID).
		Scan(&p.ID, &p.ListingID, &p.ObjectKey, &p.ContentType, &p.SizeBytes, &p.SortOrder, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *store) DeleteListingPhoto(ctx context.Context, listingID, photoID int64) error {
	return s.execAffected(ctx, `DELETE FROM listing_photos WHERE listing_id = ? AND id = ?`, listingID, photoID)
}

func (s *store) CountListingPhotos(ctx context.Context, listingID int64) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM listing_photos WHERE listing_id = ?`, listingID).Scan(&n)
	return n, err
}

// --- Favorites ---

// AddFavorite reports whether a new favorite row was written.
func (s *store) AddFavorite(ctx context.Context, userID, listingID int64) (bool, error) {
	var added bool
	err := s.withTx(ctx, func(tx conn) error {
		res, err := tx.exec(ctx,
			`INSERT INTO favorites (user_id, listing_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, userID, listingID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil
		}
		added = true
		_, err = tx.exec(ctx, `UPDATE listings SET favorite_count = favorite_count + 1 WHERE id = ?`, listingID)
		return err
	})
	return added, err
}

func (s *store) RemoveFavorite(ctx context.Context, userID, listingID int64) (bool, error) {
	var removed bool
	err := s.withTx(ctx, func(tx conn) error {
		res, err := tx.exec(ctx, `DELETE FROM favorites WHERE user_id = ? AND listing_id = ?`, userID, listingID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil
		}
		removed = true
		_, err = tx.exec(ctx,
			`UPDATE listings SET favorite_count = favorite_count - 1 WHERE id = ? AND favorite_count > 0`, listingID)
		return err
	})
	return removed, err
}

func (s *store) IsFavorite(ctx context.Context, userID, listingID int64) (bool, error) {
	var n int
	err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM favorites WHERE user_id = ? AND listing_id = ?`, userID, listingID).Scan(&n)
	return n > 0, err
}

func (s *store) ListFavoriteListings(ctx context.Context, userID int64, limit, offset int) ([]models.Listing, error) {
	limit, offset = normalizePage(limit, offset)
	rows, err := s.query(ctx,
		listingSelect+` JOIN favorites f ON f.listing_id = l.id
		 WHERE f.user_id = ?
		 ORDER BY f.created_at DESC, l.id DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListings(rows)
}

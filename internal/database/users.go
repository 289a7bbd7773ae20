package database

import (
	"context"
	"strings"
	"time"

	"github.com/odvcencio/ilanhub/internal/models"
)

const userColumns = `id, username, email, password_hash, role, status, display_name, phone, city, company_name,
	email_verified, phone_verified, identity_verified, corporate_verified, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Status, &u.DisplayName,
		&u.Phone, &u.City, &u.CompanyName, &u.EmailVerified, &u.PhoneVerified, &u.IdentityVerified,
		&u.CorporateVerified, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *store) CreateUser(ctx context.Context, u *models.User) error {
	if u.Role == "" {
		u.Role = models.RoleIndividual
	}
	if u.Status == "" {
		u.Status = models.UserStatusActive
	}
	return s.queryRow(ctx,
		`INSERT INTO users (username, email, password_hash, role, status, display_name, phone, city, company_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id, created_at`,
		u.Username, u.Email, u.PasswordHash, u.Role, u.Status, u.DisplayName, u.Phone, u.City, u.CompanyName,
	).Scan(&u.ID, &u.CreatedAt)
}

func (s *store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (s *store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (s *store) UpdateUserProfile(ctx context.Context, u *models.User) error {
	return s.execAffected(ctx,
		`UPDATE users SET display_name = ?, phone = ?, phone_verified = ?, city = ?, company_name = ? WHERE id = ?`,
		u.DisplayName, u.Phone, u.PhoneVerified, u.City, u.CompanyName, u.ID)
}

func (s *store) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	return s.execAffected(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, userID)
}

func (s *store) SetUserEmailVerified(ctx context.Context, userID int64) error {
	return s.execAffected(ctx, `UPDATE users SET email_verified = TRUE WHERE id = ?`, userID)
}

func (s *store) SetUserPhoneVerified(ctx context.Context, userID int64, phone string) error {
	return s.execAffected(ctx, `UPDATE users SET phone = ?, phone_verified = TRUE WHERE id = ?`, phone, userID)
}

func (c conn) SetUserIdentityVerified(ctx context.Context, userID int64) error {
	return c.execAffected(ctx, `UPDATE users SET identity_verified = TRUE WHERE id = ?`, userID)
}

// PromoteUserToCorporate never demotes an admin.
func (c conn) PromoteUserToCorporate(ctx context.Context, userID int64, companyName string) error {
	return c.execAffected(ctx,
		`UPDATE users
		 SET role = CASE WHEN role = ? THEN role ELSE ? END,
			 corporate_verified = TRUE,
			 company_name = CASE WHEN ? <> '' THEN ? ELSE company_name END
		 WHERE id = ?`,
		models.RoleAdmin, models.RoleCorporate, companyName, companyName, userID)
}

func (c conn) SetUserStatus(ctx context.Context, userID int64, status string) error {
	return c.execAffected(ctx, `UPDATE users SET status = ? WHERE id = ?`, status, userID)
}

func (s *store) ListUsersPage(ctx context.Context, query string, limit, offset int) ([]models.User, error) {
	limit, offset = normalizePage(limit, offset)
	q := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if query = strings.ToLower(strings.TrimSpace(query)); query != "" {
		q += ` WHERE LOWER(username) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\' OR LOWER(display_name) LIKE ? ESCAPE '\'`
		like := containsPattern(query)
		args = append(args, like, like, like)
	}
	q += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// --- One-time codes ---

func (s *store) CreateOTPCode(ctx context.Context, c *models.OTPCode) error {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return s.withTx(ctx, func(tx conn) error {
		// A fresh code supersedes any outstanding one for the same purpose.
		if _, err := tx.exec(ctx,
			`UPDATE otp_codes SET used_at = ? WHERE user_id = ? AND purpose = ? AND used_at IS NULL`,
			tx.d.ts(time.Now()), c.UserID, c.Purpose); err != nil {
			return err
		}
		return tx.queryRow(ctx,
			`INSERT INTO otp_codes (user_id, purpose, target, code_hash, max_attempts, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 RETURNING id, created_at`,
			c.UserID, c.Purpose, c.Target, c.CodeHash, c.MaxAttempts, tx.d.ts(c.ExpiresAt),
		).Scan(&c.ID, &c.CreatedAt)
	})
}

func (s *store) GetActiveOTPCode(ctx context.Context, userID int64, purpose string, now time.Time) (*models.OTPCode, error) {
	c := &models.OTPCode{}
	err := s.queryRow(ctx,
		`SELECT id, user_id, purpose, target, code_hash, attempts, max_attempts, expires_at, used_at, created_at
		 FROM otp_codes
		 WHERE user_id = ? AND purpose = ? AND used_at IS NULL AND expires_at > ?
		 ORDER BY id DESC
		 LIMIT 1`,
		userID, purpose, s.d.ts(now),
	).Scan(&c.ID, &c.UserID, &c.Purpose, &c.Target, &c.CodeHash, &c.Attempts, &c.MaxAttempts, &c.ExpiresAt, &c.UsedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ReserveOTPAttempt spends one attempt on a live code before it is compared.
// It fails with sql.ErrNoRows once the code is used or out of attempts, so
// concurrent guesses can never exceed max_attempts.
func (s *store) ReserveOTPAttempt(ctx context.Context, id int64) error {
	return s.execAffected(ctx,
		`UPDATE otp_codes SET attempts = attempts + 1
		 WHERE id = ? AND used_at IS NULL AND attempts < max_attempts`, id)
}

// ConsumeOTPCode marks a code used. It fails with sql.ErrNoRows when the code
// was already consumed by a concurrent request.
func (s *store) ConsumeOTPCode(ctx context.Context, id int64, now time.Time) error {
	return s.execAffected(ctx, `UPDATE otp_codes SET used_at = ? WHERE id = ? AND used_at IS NULL`, s.d.ts(now), id)
}

// --- Passkeys ---

func (s *store) CreateWebAuthnCredential(ctx context.Context, credential *models.WebAuthnCredential) error {
	return s.queryRow(ctx,
		`INSERT INTO webauthn_credentials (user_id, credential_id, data_json) VALUES (?, ?, ?)
		 RETURNING id, created_at`,
		credential.UserID, credential.CredentialID, credential.DataJSON,
	).Scan(&credential.ID, &credential.CreatedAt)
}

func (s *store) ListWebAuthnCredentials(ctx context.Context, userID int64) ([]models.WebAuthnCredential, error) {
	rows, err := s.query(ctx,
		`SELECT id, user_id, credential_id, data_json, created_at, last_used_at
		 FROM webauthn_credentials
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WebAuthnCredential
	for rows.Next() {
		var c models.WebAuthnCredential
		if err := rows.Scan(&c.ID, &c.UserID, &c.CredentialID, &c.DataJSON, &c.CreatedAt, &c.LastUsedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *store) UpdateWebAuthnCredential(ctx context.Context, credential *models.WebAuthnCredential) error {
	_, err := s.exec(ctx,
		`UPDATE webauthn_credentials SET data_json = ?, last_used_at = ? WHERE user_id = ? AND credential_id = ?`,
		credential.DataJSON, s.d.tsPtr(credential.LastUsedAt), credential.UserID, credential.CredentialID)
	return err
}

func (s *store) CreateWebAuthnSession(ctx context.Context, session *models.WebAuthnSession) error {
	_, err := s.exec(ctx,
		`INSERT INTO webauthn_sessions (id, user_id, flow, data_json, expires_at) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Flow, session.DataJSON, s.d.ts(session.ExpiresAt))
	return err
}

func (s *store) ConsumeWebAuthnSession(ctx context.Context, id, flow string, now time.Time) (*models.WebAuthnSession, error) {
	session := &models.WebAuthnSession{}
	err := s.withTx(ctx, func(tx conn) error {
		err := tx.queryRow(ctx,
			`SELECT id, user_id, flow, data_json, expires_at, used_at, created_at
			 FROM webauthn_sessions
			 WHERE id = ? AND flow = ? AND used_at IS NULL AND expires_at > ?`,
			id, flow, tx.d.ts(now)).
			Scan(&session.ID, &session.UserID, &session.Flow, &session.DataJSON, &session.ExpiresAt, &session.UsedAt, &session.CreatedAt)
		if err != nil {
			return err
		}
		return tx.execAffected(ctx, `UPDATE webauthn_sessions SET used_at = ? WHERE id = ? AND used_at IS NULL`, tx.d.ts(now), id)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// IsUniqueViolation reports whether err came from a unique index on either backend.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}

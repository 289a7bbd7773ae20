package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/odvcencio/ilanhub/internal/auth"
	"github.com/odvcencio/ilanhub/internal/cache"
	"github.com/odvcencio/ilanhub/internal/database"
	mailer "github.com/odvcencio/ilanhub/internal/mail"
	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/textnorm"
)

const (
	minPasswordLength = 8
	otpResendInterval = 60 * time.Second
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,31}$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
)

// SMSSender delivers phone verification codes.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, text string) error
}

// LogSMSSender writes codes to the log. It is the only SMS transport shipped.
type LogSMSSender struct{}

func (LogSMSSender) SendSMS(ctx context.Context, phone, text string) error {
	slog.InfoContext(ctx, "sms", "phone", phone, "text", text)
	return nil
}

type AccountOptions struct {
	OTPTTL         time.Duration
	OTPMaxAttempts int
}

type AccountService struct {
	db     database.DB
	auth   *auth.Service
	cache  cache.Cache
	mailer *Mailer
	sms    SMSSender
	opts   AccountOptions
	now    func() time.Time
}

func NewAccountService(db database.DB, authSvc *auth.Service, c cache.Cache, m *Mailer, sms SMSSender, opts AccountOptions) *AccountService {
	if c == nil {
		c = cache.NewMemory()
	}
	if sms == nil {
		sms = LogSMSSender{}
	}
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 10 * time.Minute
	}
	if opts.OTPMaxAttempts <= 0 {
		opts.OTPMaxAttempts = 5
	}
	return &AccountService{
		db:     db,
		auth:   authSvc,
		cache:  c,
		mailer: m,
		sms:    sms,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type RegisterInput struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	CompanyName string `json:"company_name"`
	City        string `json:"city"`
}

// Register creates an individual or corporate account and mails an email
// verification code. Corporate accounts start unverified.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLength {
		return nil, invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	role := strings.TrimSpace(strings.ToLower(in.Role))
	switch role {
	case "":
		role = models.RoleIndividual
	case models.RoleIndividual, models.RoleCorporate:
	default:
		return nil, invalid("role", "must be individual or corporate")
	}
	company := strings.TrimSpace(in.CompanyName)
	if role == models.RoleCorporate && company == "" {
		return nil, invalid("company_name", "is required for corporate accounts")
	}

	if _, err := s.db.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	username := strings.ToLower(strings.TrimSpace(in.Username))
	if username != "" {
		if !usernamePattern.MatchString(username) {
			return nil, invalid("username", "must be 3-32 characters of a-z, 0-9, _ or -")
		}
		if _, err := s.db.GetUserByUsername(ctx, username); err == nil {
			return nil, ErrConflict
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	} else {
		username, err = s.deriveUsername(ctx, email)
		if err != nil {
			return nil, err
		}
	}

	hash, err := s.auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}
	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       models.UserStatusActive,
		DisplayName:  clipText(displayName, 80),
		City:         strings.TrimSpace(in.City),
		CompanyName:  company,
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	if err := s.SendEmailOTP(ctx, user.ID); err != nil && !errors.Is(err, ErrRateLimited) {
		slog.Error("send email verification code", "user_id", user.ID, "error", err)
	}
	return user, nil
}

// deriveUsername turns the local part of an email into a free username.
func (s *AccountService) deriveUsername(ctx context.Context, email string) (string, error) {
	local, _, _ := strings.Cut(email, "@")
	base := strings.ReplaceAll(textnorm.Slug(local), "-", "_")
	if len(base) < 3 {
		base = "uye_" + base
	}
	if len(base) > 24 {
		base = base[:24]
	}
	for i := 0; i < 50; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s%d", base, i+1)
		}
		_, err := s.db.GetUserByUsername(ctx, candidate)
		if errors.Is(err, sql.ErrNoRows) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free username for %q", base)
}

// Login accepts an email address or a username.
func (s *AccountService) Login(ctx context.Context, login, password string) (*models.User, error) {
	login = strings.TrimSpace(login)
	var (
		user *models.User
		err  error
	)
	if strings.Contains(login, "@") {
		user, err = s.db.GetUserByEmail(ctx, strings.ToLower(login))
	} else {
		user, err = s.db.GetUserByUsername(ctx, strings.ToLower(login))
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if err := s.auth.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	if user.Status == models.UserStatusBanned {
		return nil, ErrForbidden
	}
	return user, nil
}

// ActiveUser loads a user for an authenticated request; banned users are
// treated as forbidden even while their token is still valid.
func (s *AccountService) ActiveUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status == models.UserStatusBanned {
		return nil, ErrForbidden
	}
	return user, nil
}

func (s *AccountService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (s *AccountService) PublicProfile(ctx context.Context, username string) (*models.PublicProfile, error) {
	user, err := s.db.GetUserByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return nil, notFound(err)
	}
	if user.Status == models.UserStatusBanned {
		return nil, ErrNotFound
	}
	p := user.Public()
	return &p, nil
}

type ProfileUpdate struct {
	DisplayName *string `json:"display_name"`
	City        *string `json:"city"`
	CompanyName *string `json:"company_name"`
}

// UpdateProfile changes display fields. Phone numbers change only through
// phone verification.
func (s *AccountService) UpdateProfile(ctx context.Context, userID int64, in ProfileUpdate) (*models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if name == "" {
			return nil, invalid("display_name", "must not be empty")
		}
		user.DisplayName = clipText(name, 80)
	}
	if in.City != nil {
		user.City = strings.TrimSpace(*in.City)
	}
	if in.CompanyName != nil {
		company := strings.TrimSpace(*in.CompanyName)
		if user.Role == models.RoleCorporate && company == "" {
			return nil, invalid("company_name", "is required for corporate accounts")
		}
		user.CompanyName = company
	}
	if err := s.db.UpdateUserProfile(ctx, user); err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

// SendEmailOTP mails a fresh email verification code.
func (s *AccountService) SendEmailOTP(ctx context.Context, userID int64) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return nil
	}
	code, err := s.issueOTP(ctx, user.ID, models.OTPEmailVerify, user.Email)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, mailer.Message{
		To:      user.Email,
		Subject: "ilanhub e-posta doğrulama kodu",
		Body:    fmt.Sprintf("Doğrulama kodunuz: %s\nKod %d dakika geçerlidir.", code, int(s.opts.OTPTTL.Minutes())),
	})
}

func (s *AccountService) VerifyEmail(ctx context.Context, userID int64, code string) error {
	if _, err := s.verifyOTP(ctx, userID, models.OTPEmailVerify, code); err != nil {
		return err
	}
	return notFound(s.db.SetUserEmailVerified(ctx, userID))
}

// RequestPhoneVerification texts a code to phone. The number is stored only
// once the code is confirmed.
func (s *AccountService) RequestPhoneVerification(ctx context.Context, userID int64, phone string) error {
	phone = normalizePhone(phone)
	if !phonePattern.MatchString(phone) {
		return invalid("phone", "must be 10 to 15 digits")
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	code, err := s.issueOTP(ctx, userID, models.OTPPhoneVerify, phone)
	if err != nil {
		return err
	}
	return s.sms.SendSMS(ctx, phone, "ilanhub doğrulama kodunuz: "+code)
}

func (s *AccountService) VerifyPhone(ctx context.Context, userID int64, code string) (*models.User, error) {
	otp, err := s.verifyOTP(ctx, userID, models.OTPPhoneVerify, code)
	if err != nil {
		return nil, err
	}
	if err := s.db.SetUserPhoneVerified(ctx, userID, otp.Target); err != nil {
		return nil, notFound(err)
	}
	return s.GetUser(ctx, userID)
}

// RequestPasswordReset mails a reset code when the address belongs to an
// account. It reports success either way so callers cannot probe for
// registered addresses.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil
	}
	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	code, err := s.issueOTP(ctx, user.ID, models.OTPPasswordReset, user.Email)
	if errors.Is(err, ErrRateLimited) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, mailer.Message{
		To:      user.Email,
		Subject: "ilanhub şifre sıfırlama",
		Body:    fmt.Sprintf("Şifre sıfırlama kodunuz: %s\nBu isteği siz yapmadıysanız bu e-postayı yok sayın.", code),
	})
}

func (s *AccountService) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return ErrUnauthorized
	}
	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnauthorized
		}
		return err
	}
	if _, err := s.verifyOTP(ctx, user.ID, models.OTPPasswordReset, code); err != nil {
		return err
	}
	hash, err := s.auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.db.UpdateUserPassword(ctx, user.ID, hash)
}

// issueOTP stores a hashed code and returns the plain one. One code per user
// and purpose may be issued every otpResendInterval.
func (s *AccountService) issueOTP(ctx context.Context, userID int64, purpose, target string) (string, error) {
	ok, err := s.cache.SetNX(ctx, fmt.Sprintf("otp:%s:%d", purpose, userID), []byte("1"), otpResendInterval)
	if err != nil {
		return "", fmt.Errorf("otp throttle: %w", err)
	}
	if !ok {
		return "", ErrRateLimited
	}
	code, err := auth.GenerateOTP()
	if err != nil {
		return "", err
	}
	hash, err := s.auth.HashOTP(code)
	if err != nil {
		return "", err
	}
	otp := &models.OTPCode{
		UserID:      userID,
		Purpose:     purpose,
		Target:      target,
		CodeHash:    hash,
		MaxAttempts: s.opts.OTPMaxAttempts,
		ExpiresAt:   s.now().Add(s.opts.OTPTTL),
	}
	if err := s.db.CreateOTPCode(ctx, otp); err != nil {
		return "", err
	}
	return code, nil
}

// verifyOTP checks code against the user's live code for purpose. Every
// guess spends an attempt before the hash compare; the code is spent on success.
func (s *AccountService) verifyOTP(ctx context.Context, userID int64, purpose, code string) (*models.OTPCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, invalid("code", "is required")
	}
	otp, err := s.db.GetActiveOTPCode(ctx, userID, purpose, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalid("code", "is invalid or expired")
		}
		return nil, err
	}
	if err := s.db.ReserveOTPAttempt(ctx, otp.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalid("code", "too many attempts, request a new code")
		}
		return nil, err
	}
	if !s.auth.CheckOTP(otp.CodeHash, code) {
		return nil, invalid("code", "is invalid or expired")
	}
	if err := s.db.ConsumeOTPCode(ctx, otp.ID, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalid("code", "is invalid or expired")
		}
		return nil, err
	}
	return otp, nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || !strings.Contains(addr.Address, "@") {
		return "", invalid("email", "must be a valid address")
	}
	return strings.ToLower(addr.Address), nil
}

func normalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

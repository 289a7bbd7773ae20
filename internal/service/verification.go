package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/ilanhub/internal/database"
	mailer "github.com/odvcencio/ilanhub/internal/mail"
	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/storage"
)

const MaxDocumentBytes = 8 << 20

var verificationDocumentTypes = map[string]string{
	"application/pdf": "pdf",
	"image/jpeg":      "jpg",
	"image/png":       "png",
}

type VerificationService struct {
	db            database.DB
	store         storage.Backend
	notifications *NotificationService
	mailer        *Mailer
	now           func() time.Time
}

func NewVerificationService(db database.DB, store storage.Backend, notifications *NotificationService, m *Mailer) *VerificationService {
	return &VerificationService{
		db:            db,
		store:         store,
		notifications: notifications,
		mailer:        m,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

type IdentityInput struct {
	NationalID string `json:"national_id"`
	FullName   string `json:"full_name"`
	BirthYear  int    `json:"birth_year"`
}

type CorporateInput struct {
	TaxNumber   string `json:"tax_number"`
	TaxOffice   string `json:"tax_office"`
	TradeName   string `json:"trade_name"`
	DocumentKey string `json:"document_key"`
}

func (s *VerificationService) SubmitIdentity(ctx context.Context, userID int64, in IdentityInput) (*models.VerificationRequest, error) {
	nationalID := strings.TrimSpace(in.NationalID)
	if !ValidTCKN(nationalID) {
		return nil, invalid("national_id", "is not a valid T.C. kimlik number")
	}
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return nil, invalid("full_name", "is required")
	}
	if in.BirthYear < 1900 || in.BirthYear > s.now().Year()-18 {
		return nil, invalid("birth_year", "must be a year at least 18 years ago")
	}
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, notFound(err)
	}
	if user.IdentityVerified {
		return nil, ErrConflict
	}
	return s.create(ctx, &models.VerificationRequest{
		UserID:     userID,
		Kind:       models.VerificationIdentity,
		NationalID: nationalID,
		FullName:   clipText(name, 120),
		BirthYear:  in.BirthYear,
	})
}

func (s *VerificationService) SubmitCorporate(ctx context.Context, userID int64, in CorporateInput) (*models.VerificationRequest, error) {
	taxNumber := strings.TrimSpace(in.TaxNumber)
	if !ValidVKN(taxNumber) {
		return nil, invalid("tax_number", "is not a valid vergi kimlik number")
	}
	office := strings.TrimSpace(in.TaxOffice)
	if office == "" {
		return nil, invalid("tax_office", "is required")
	}
	trade := strings.TrimSpace(in.TradeName)
	if trade == "" {
		return nil, invalid("trade_name", "is required")
	}
	docKey := strings.TrimSpace(in.DocumentKey)
	if docKey != "" {
		if !strings.HasPrefix(docKey, fmt.Sprintf("verifications/%d/", userID)) {
			return nil, invalid("document_key", "does not belong to you")
		}
		ok, err := s.store.Has(ctx, docKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalid("document_key", "was not uploaded")
		}
	}
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, notFound(err)
	}
	if user.CorporateVerified {
		return nil, ErrConflict
	}
	return s.create(ctx, &models.VerificationRequest{
		UserID:      userID,
		Kind:        models.VerificationCorporate,
		TaxNumber:   taxNumber,
		TaxOffice:   clipText(office, 120),
		TradeName:   clipText(trade, 200),
		DocumentKey: docKey,
	})
}

func (s *VerificationService) create(ctx context.Context, req *models.VerificationRequest) (*models.VerificationRequest, error) {
	if _, err := s.db.GetPendingVerificationRequest(ctx, req.UserID, req.Kind); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	req.Status = models.VerificationPending
	if err := s.db.CreateVerificationRequest(ctx, req); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return req, nil
}

// UploadDocument stores a supporting document (trade registry gazette, tax
// plate) and returns the key to submit with a corporate request.
func (s *VerificationService) UploadDocument(ctx context.Context, userID int64, data []byte) (string, error) {
	if len(data) == 0 {
		return "", invalid("file", "is empty")
	}
	if len(data) > MaxDocumentBytes {
		return "", invalid("file", "must be at most 8 MiB")
	}
	contentType, ext, err := sniffUpload(data, verificationDocumentTypes)
	if err != nil {
		return "", err
	}
	key := storage.VerificationDocumentKey(userID, ext)
	if err := s.store.Write(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("store verification document: %w", err)
	}
	return key, nil
}

func (s *VerificationService) ListMine(ctx context.Context, userID int64) ([]models.VerificationRequest, error) {
	return s.db.ListUserVerificationRequests(ctx, userID)
}

func (s *VerificationService) ListByStatus(ctx context.Context, status string, page, perPage int) ([]models.VerificationRequest, error) {
	if status == "" {
		status = models.VerificationPending
	}
	switch status {
	case models.VerificationPending, models.VerificationApproved, models.VerificationRejected:
	default:
		return nil, invalid("status", "must be PENDING, APPROVED or REJECTED")
	}
	limit, offset := normalizePage(page, perPage, 50, 200)
	return s.db.ListVerificationRequestsByStatus(ctx, status, limit, offset)
}

func (s *VerificationService) Get(ctx context.Context, id int64) (*models.VerificationRequest, error) {
	req, err := s.db.GetVerificationRequest(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return req, nil
}

// Decide approves or rejects a pending request. Approval marks the user's
// identity as verified, or promotes the user to a verified corporate account.
func (s *VerificationService) Decide(ctx context.Context, adminID, id int64, approve bool, reason string) (*models.VerificationRequest, error) {
	reason = strings.TrimSpace(reason)
	if !approve && reason == "" {
		return nil, invalid("reason", "is required when rejecting")
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.VerificationPending {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	req.Status = models.VerificationRejected
	action := "verification.reject"
	if approve {
		req.Status = models.VerificationApproved
		action = "verification.approve"
	}
	req.ReviewerID = &adminID
	req.Reason = clipText(reason, 1000)
	req.ReviewedAt = &now
	if err := s.db.ApplyVerificationDecision(ctx, req, &models.ModerationAction{
		AdminID:    adminID,
		TargetType: "verification",
		TargetID:   req.ID,
		Action:     action,
		Reason:     req.Reason,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	logNotifyErr(s.notifications.NotifyVerificationDecision(ctx, req, adminID), "verification.decide", "request_id", req.ID)
	s.mailDecision(ctx, req)
	return req, nil
}

func (s *VerificationService) mailDecision(ctx context.Context, req *models.VerificationRequest) {
	user, err := s.db.GetUserByID(ctx, req.UserID)
	if err != nil {
		logNotifyErr(err, "verification.mail", "request_id", req.ID)
		return
	}
	subject := "Doğrulama başvurunuz onaylandı"
	body := "Hesabınız doğrulandı. Teşekkür ederiz."
	if req.Status == models.VerificationRejected {
		subject = "Doğrulama başvurunuz reddedildi"
		body = "Gerekçe: " + req.Reason
	}
	logNotifyErr(s.mailer.Send(ctx, mailer.Message{To: user.Email, Subject: subject, Body: body}),
		"verification.mail", "request_id", req.ID)
}

// ValidTCKN checks a Turkish national identity number: 11 digits, no leading
// zero, and the two trailing check digits.
func ValidTCKN(s string) bool {
	if len(s) != 11 || s[0] == '0' {
		return false
	}
	var d [11]int
	for i := 0; i < 11; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
		d[i] = int(s[i] - '0')
	}
	odd := d[0] + d[2] + d[4] + d[6] + d[8]
	even := d[1] + d[3] + d[5] + d[7]
	if ((odd*7-even)%10+10)%10 != d[9] {
		return false
	}
	sum := 0
	for i := 0; i < 10; i++ {
		sum += d[i]
	}
	return sum%10 == d[10]
}

// ValidVKN checks a 10-digit Turkish tax identification number.
func ValidVKN(s string) bool {
	if len(s) != 10 {
		return false
	}
	sum := 0
	for i := 0; i < 9; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
		tmp := (int(s[i]-'0') + 9 - i) % 10
		v := (tmp * (1 << uint(9-i))) % 9
		if tmp != 0 && v == 0 {
			v = 9
		}
		sum += v
	}
	if s[9] < '0' || s[9] > '9' {
		return false
	}
	return (10-sum%10)%10 == int(s[9]-'0')
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/odvcencio/ilanhub/internal/models"
)

// ApplyListingDecision moves a listing out of status from and records the
// admin action in one transaction. It returns sql.ErrNoRows when the listing
// is gone or no longer in that status.
func (s *store) ApplyListingDecision(ctx context.Context, id int64, from string, change ListingStatusChange, action *models.ModerationAction) error {
	return s.withTx(ctx, func(tx conn) error {
		if err := tx.UpdateListingStatus(ctx, id, from, change); err != nil {
			return err
		}
		return tx.CreateModerationAction(ctx, action)
	})
}

// BanUser blocks an account, passivates its live listings and records the
// action atomically. It returns how many listings went PASSIVE.
func (s *store) BanUser(ctx context.Context, userID int64, now time.Time, action *models.ModerationAction) (int64, error) {
	var passivated int64
	err := s.withTx(ctx, func(tx conn) error {
		if err := tx.SetUserStatus(ctx, userID, models.UserStatusBanned); err != nil {
			return err
		}
		n, err := tx.PassivateUserListings(ctx, userID, now)
		if err != nil {
			return fmt.Errorf("passivate listings of user %d: %w", userID, err)
		}
		passivated = n
		return tx.CreateModerationAction(ctx, action)
	})
	if err != nil {
		return 0, err
	}
	return passivated, nil
}

// UnbanUser reactivates a banned account and records the action. It returns
// sql.ErrNoRows when the user is missing or not banned.
func (s *store) UnbanUser(ctx context.Context, userID int64, action *models.ModerationAction) error {
	return s.withTx(ctx, func(tx conn) error {
		if err := tx.execAffected(ctx, `UPDATE users SET status = ? WHERE id = ? AND status = ?`,
			models.UserStatusActive, userID, models.UserStatusBanned); err != nil {
			return err
		}
		return tx.CreateModerationAction(ctx, action)
	})
}

// ApplyVerificationDecision records a reviewer decision on a pending request,
// grants the account flags an approval carries and logs the action, all in
// one transaction. It returns sql.ErrNoRows when the request was already
// decided.
func (s *store) ApplyVerificationDecision(ctx context.Context, r *models.VerificationRequest, action *models.ModerationAction) error {
	return s.withTx(ctx, func(tx conn) error {
		if err := tx.DecideVerificationRequest(ctx, r); err != nil {
			return err
		}
		if r.Status == models.VerificationApproved {
			var err error
			switch r.Kind {
			case models.VerificationIdentity:
				err = tx.SetUserIdentityVerified(ctx, r.UserID)
			case models.VerificationCorporate:
				err = tx.PromoteUserToCorporate(ctx, r.UserID, r.TradeName)
			}
			if err != nil {
				return fmt.Errorf("apply verification %d: %w", r.ID, err)
			}
		}
		return tx.CreateModerationAction(ctx, action)
	})
}

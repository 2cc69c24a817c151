package service

import (
	"context"
	"fmt"

	"github.com/skyden/vps-platform/provisioning-service/internal/models"
)

// UserStore persists Telegram accounts.
type UserStore interface {
	GetOrCreate(ctx context.Context, ownerID int64, username, fullName *string) (*models.User, bool, error)
	GetByOwnerID(ctx context.Context, ownerID int64) (*models.User, error)
}

// UserService registers users as the bot sees them. The bot backend
// calls Sync on every /start, so this is also where a referral deep
// link gets recorded.
type UserService struct {
	users      UserStore
	referrals  *ReferralService
	automation Automation
}

func NewUserService(users UserStore, referrals *ReferralService, automation Automation) *UserService {
	return &UserService{users: users, referrals: referrals, automation: automation}
}

// Sync upserts the user's profile. A non-zero referrerID links the user
// to their referrer; only the first link ever sticks.
func (s *UserService) Sync(ctx context.Context, ownerID int64, username, fullName *string, referrerID int64) (*models.User, error) {
	u, isNew, err := s.users.GetOrCreate(ctx, ownerID, username, fullName)
	if err != nil {
		return nil, fmt.Errorf("sync user %d: %w", ownerID, err)
	}

	if isNew {
		s.automation.Emit(ctx, "user.registered", map[string]any{
			"owner_id":    ownerID,
			"referrer_id": referrerID,
		})
	}
	if referrerID != 0 {
		s.referrals.Register(ctx, referrerID, ownerID)
	}
	return u, nil
}

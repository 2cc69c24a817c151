package service

import (
	"context"
	"log"

	"github.com/skyden/vps-platform/provisioning-service/internal/config"
	"github.com/skyden/vps-platform/provisioning-service/internal/models"
)

// ReferralStore is the referral link and bonus-balance ledger.
type ReferralStore interface {
	Register(ctx context.Context, referrerID, referredID int64) (bool, error)
	GetReferrer(ctx context.Context, referredID int64) (int64, error)
	AwardBonus(ctx context.Context, referredID int64, bonusRUB, bonusUSDT float64, currency string) (int64, bool, error)
	DebitRUB(ctx context.Context, ownerID int64, amount float64) (bool, error)
	GetBalance(ctx context.Context, ownerID int64) (rub, usdt float64, err error)
}

// ReferralService pays the one-time bonus when a referred user completes
// their first purchase. Everything here is best-effort from the
// fulfillment workflow's point of view: a referral failure never fails
// the sale.
type ReferralService struct {
	referrals ReferralStore
	notifier  Notifier
	cfg       config.ReferralConfig
}

func NewReferralService(referrals ReferralStore, notifier Notifier, cfg config.ReferralConfig) *ReferralService {
	return &ReferralService{referrals: referrals, notifier: notifier, cfg: cfg}
}

// Register links a new user to their referrer. Self-referrals and
// repeat registrations are silently ignored.
func (s *ReferralService) Register(ctx context.Context, referrerID, referredID int64) {
	if !s.cfg.Enabled {
		return
	}
	if _, err := s.referrals.Register(ctx, referrerID, referredID); err != nil {
		log.Printf("[referral] Register %d -> %d failed: %v", referrerID, referredID, err)
	}
}

// Award pays the referrer of referredID if the bonus is still unpaid.
// The bonus bucket matches the currency the referred user paid in.
func (s *ReferralService) Award(ctx context.Context, referredID int64, currency string) {
	if !s.cfg.Enabled {
		return
	}
	referrerID, awarded, err := s.referrals.AwardBonus(ctx, referredID, s.cfg.BonusRUB, s.cfg.BonusUSDT, currency)
	if err != nil {
		log.Printf("[referral] Award for referred %d failed: %v", referredID, err)
		return
	}
	if !awarded {
		return
	}

	amount := s.cfg.BonusRUB
	if currency == models.CurrencyUSDT {
		amount = s.cfg.BonusUSDT
	}
	log.Printf("[referral] Bonus %.2f %s paid to %d for referred %d", amount, currency, referrerID, referredID)
	s.notifier.ReferralBonus(referrerID, amount, currency)
}

// Balance reads an owner's bonus balances.
func (s *ReferralService) Balance(ctx context.Context, ownerID int64) (rub, usdt float64, err error) {
	return s.referrals.GetBalance(ctx, ownerID)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skyden/vps-platform/provisioning-service/internal/config"
	"github.com/skyden/vps-platform/provisioning-service/internal/models"
	"github.com/skyden/vps-platform/provisioning-service/internal/repository"
)

// PromoStore is the discount-code catalog and usage ledger.
type PromoStore interface {
	GetByCode(ctx context.Context, code string) (*models.PromoCode, error)
	HasUsed(ctx context.Context, promoID, ownerID int64) (bool, error)
	Redeem(ctx context.Context, promoID, ownerID int64, tariffID string, discount float64, currency string) (bool, error)
	Create(ctx context.Context, p *models.PromoCode) error
	Deactivate(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, limit int) ([]*models.PromoCode, error)
}

// A discounted charge never drops below these floors; both gateways
// reject zero-amount sessions.
const (
	minChargeRUB  = 1.0
	minChargeUSDT = 0.01
)

// promoDiscount validates a code against the purchase and returns the
// discount in the payment currency. Usage limits that need the ledger
// (one_per_user) are checked separately.
func promoDiscount(p *models.PromoCode, tariff config.Tariff, currency string) (float64, error) {
	if !p.IsActive {
		return 0, ErrPromoInvalid
	}
	if p.ExpiresAt != nil && p.ExpiresAt.Before(time.Now()) {
		return 0, ErrPromoInvalid
	}
	if p.MaxUses > 0 && p.UsesCount >= p.MaxUses {
		return 0, ErrPromoExhausted
	}
	if len(p.OnlyTariffs) > 0 {
		allowed := false
		for _, id := range p.OnlyTariffs {
			if id == tariff.ID {
				allowed = true
				break
			}
		}
		if !allowed {
			return 0, ErrPromoNotApplicable
		}
	}

	switch p.Type {
	case models.PromoPercent:
		price := tariff.PriceRUB
		if currency == models.CurrencyUSDT {
			price = tariff.PriceUSDT
		}
		return price * p.Value / 100, nil
	case models.PromoFixedRUB:
		if currency != models.CurrencyRUB {
			return 0, ErrPromoNotApplicable
		}
		return p.Value, nil
	case models.PromoFixedUSDT:
		if currency != models.CurrencyUSDT {
			return 0, ErrPromoNotApplicable
		}
		return p.Value, nil
	default:
		return 0, ErrPromoInvalid
	}
}

// applyPromo validates the code for this purchase and records the
// redemption. The returned discount is clamped so the charge stays
// above the gateway minimum.
func (s *PaymentService) applyPromo(ctx context.Context, code string, ownerID int64, tariff config.Tariff, amount float64, currency string) (float64, error) {
	promo, err := s.promos.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrPromoInvalid
		}
		return 0, fmt.Errorf("load promo: %w", err)
	}

	discount, err := promoDiscount(promo, tariff, currency)
	if err != nil {
		return 0, err
	}

	if promo.OnePerUser {
		used, err := s.promos.HasUsed(ctx, promo.ID, ownerID)
		if err != nil {
			return 0, fmt.Errorf("check promo usage: %w", err)
		}
		if used {
			return 0, ErrPromoAlreadyUsed
		}
	}

	floor := minChargeRUB
	if currency == models.CurrencyUSDT {
		floor = minChargeUSDT
	}
	if discount > amount-floor {
		discount = amount - floor
	}
	if discount < 0 {
		discount = 0
	}

	redeemed, err := s.promos.Redeem(ctx, promo.ID, ownerID, tariff.ID, discount, currency)
	if err != nil {
		return 0, fmt.Errorf("redeem promo: %w", err)
	}
	if !redeemed {
		// Lost a race on the last activation.
		return 0, ErrPromoExhausted
	}
	return discount, nil
}

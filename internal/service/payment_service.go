package service

import (
	"context"
	"fmt"
	"log"

	"github.com/skyden/vps-platform/provisioning-service/internal/client"
	"github.com/skyden/vps-platform/provisioning-service/internal/config"
	"github.com/skyden/vps-platform/provisioning-service/internal/models"
)

// CardGateway starts and polls RUB card payments.
type CardGateway interface {
	CreateSession(ctx context.Context, amountRUB float64, description string, metadata map[string]string) (*client.PaymentSession, error)
	GetStatus(ctx context.Context, externalID string) (client.PaymentState, error)
}

// CryptoGateway starts and polls USDT invoice payments.
type CryptoGateway interface {
	CreateSession(ctx context.Context, amountUSDT float64, description string) (*client.PaymentSession, error)
	GetStatus(ctx context.Context, externalID string) (client.PaymentState, error)
}

// Enqueuer hands confirmed payments to the fulfillment workers.
type Enqueuer interface {
	Enqueue(externalID string) bool
}

// PaymentService creates payment intents and drives the user-initiated
// "I paid" status check. Pre-checks run at intent creation so a user
// who cannot be served never gets a payment link.
type PaymentService struct {
	payments PaymentStore
	servers  VpsStore
	promos   PromoStore
	card     CardGateway
	crypto   CryptoGateway
	queue    Enqueuer

	cardEnabled   bool
	cryptoEnabled bool
	limits        config.LimitsConfig
}

func NewPaymentService(
	payments PaymentStore,
	servers VpsStore,
	promos PromoStore,
	card CardGateway,
	crypto CryptoGateway,
	queue Enqueuer,
	yoo config.YooKassaConfig,
	cb config.CryptoBotConfig,
	limits config.LimitsConfig,
) *PaymentService {
	return &PaymentService{
		payments:      payments,
		servers:       servers,
		promos:        promos,
		card:          card,
		crypto:        crypto,
		queue:         queue,
		cardEnabled:   yoo.Enabled,
		cryptoEnabled: cb.Enabled,
		limits:        limits,
	}
}

// CreateIntent opens a gateway session and records the pending intent.
// renewVpsID selects renewal of an existing server instead of a new
// one. A non-empty promoCode is validated and redeemed before the
// session opens; its discount lowers the charged amount.
func (s *PaymentService) CreateIntent(ctx context.Context, ownerID int64, tariffID string, provider models.PaymentProvider, renewVpsID *int64, promoCode string) (*models.Payment, string, error) {
	tariff, ok := config.TariffByID(tariffID)
	if !ok {
		return nil, "", ErrUnknownTariff
	}

	if renewVpsID == nil {
		active, err := s.servers.CountActiveByOwner(ctx, ownerID)
		if err != nil {
			return nil, "", fmt.Errorf("count servers: %w", err)
		}
		if active >= s.limits.MaxVpsPerUser {
			return nil, "", ErrLimitReached
		}
	} else {
		v, err := s.servers.GetByID(ctx, *renewVpsID)
		if err != nil {
			return nil, "", fmt.Errorf("load renewal target: %w", err)
		}
		if v.OwnerID != ownerID {
			return nil, "", ErrNotOwned
		}
	}

	recent, err := s.payments.CountRecentByOwner(ctx, ownerID, 60)
	if err != nil {
		return nil, "", fmt.Errorf("count recent payments: %w", err)
	}
	if recent >= s.limits.PaymentsPerMinute {
		return nil, "", ErrCooldown
	}

	description := fmt.Sprintf("VPS %s, 30 дней", tariff.Name)
	if renewVpsID != nil {
		description = fmt.Sprintf("Продление VPS %s, 30 дней", tariff.Name)
	}

	var amount float64
	var currency string
	switch provider {
	case models.ProviderYooKassa:
		if !s.cardEnabled {
			return nil, "", ErrProviderDisabled
		}
		amount, currency = tariff.PriceRUB, models.CurrencyRUB
	case models.ProviderCryptoBot:
		if !s.cryptoEnabled {
			return nil, "", ErrProviderDisabled
		}
		amount, currency = tariff.PriceUSDT, models.CurrencyUSDT
	default:
		return nil, "", fmt.Errorf("unsupported provider %q", provider)
	}

	var discount float64
	var appliedCode *string
	if promoCode != "" {
		discount, err = s.applyPromo(ctx, promoCode, ownerID, tariff, amount, currency)
		if err != nil {
			return nil, "", err
		}
		amount -= discount
		code := promoCode
		appliedCode = &code
	}

	var session *client.PaymentSession
	switch provider {
	case models.ProviderYooKassa:
		session, err = s.card.CreateSession(ctx, amount, description, map[string]string{
			"owner_id":  fmt.Sprintf("%d", ownerID),
			"tariff_id": tariff.ID,
		})
	case models.ProviderCryptoBot:
		session, err = s.crypto.CreateSession(ctx, amount, description)
	}
	if err != nil {
		return nil, "", fmt.Errorf("create %s session: %w", provider, err)
	}

	p := &models.Payment{
		OwnerID:    ownerID,
		ExternalID: session.ExternalID,
		Provider:   provider,
		TariffID:   tariff.ID,
		Amount:     amount,
		Currency:   currency,
		Status:     models.PaymentStatusPending,
		RenewVpsID: renewVpsID,
		PromoCode:  appliedCode,
		Discount:   discount,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, "", fmt.Errorf("record intent: %w", err)
	}

	log.Printf("[payment] Intent %s created: owner=%d tariff=%s %s %.2f %s (discount %.2f)",
		p.ExternalID, ownerID, tariff.ID, provider, amount, currency, discount)
	return p, session.PayURL, nil
}

// MarkCanceled records a provider-reported cancellation. Safe to call
// for payments in any state; only a pending intent actually moves.
func (s *PaymentService) MarkCanceled(ctx context.Context, externalID string) error {
	if _, err := s.payments.MarkFailed(ctx, externalID); err != nil {
		return fmt.Errorf("mark canceled: %w", err)
	}
	return nil
}

// CheckAndFulfill is the "I paid" path: it polls the gateway and, when
// the provider confirms, hands the payment to the same fulfillment
// entry point the webhooks use. Returns the status the caller should
// show the user.
func (s *PaymentService) CheckAndFulfill(ctx context.Context, ownerID int64, externalID string) (models.PaymentStatus, error) {
	p, err := s.payments.GetByExternalID(ctx, externalID)
	if err != nil {
		return "", err
	}
	if p.OwnerID != ownerID {
		return "", ErrNotOwned
	}
	if p.Status != models.PaymentStatusPending {
		return p.Status, nil
	}

	var state client.PaymentState
	switch p.Provider {
	case models.ProviderYooKassa:
		state, err = s.card.GetStatus(ctx, externalID)
	case models.ProviderCryptoBot:
		state, err = s.crypto.GetStatus(ctx, externalID)
	default:
		return "", fmt.Errorf("unsupported provider %q", p.Provider)
	}
	if err != nil {
		return "", fmt.Errorf("poll %s: %w", p.Provider, err)
	}

	switch state {
	case client.PaymentStatePaid:
		if !s.queue.Enqueue(externalID) {
			log.Printf("[payment] Fulfillment queue full, payment %s will be retried", externalID)
		}
		return models.PaymentStatusPaid, nil
	case client.PaymentStateFailed:
		if _, err := s.payments.MarkFailed(ctx, externalID); err != nil {
			return "", fmt.Errorf("mark failed: %w", err)
		}
		return models.PaymentStatusFailed, nil
	default:
		return models.PaymentStatusPending, nil
	}
}

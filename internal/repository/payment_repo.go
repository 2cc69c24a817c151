package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skyden/vps-platform/provisioning-service/internal/models"
)

var ErrNotFound = errors.New("not found")

// PaymentRepository is the ledger of payment intents. external_id is
// unique and is the idempotency key for the whole fulfillment path.
// Terminal transitions happen only here: pending -> paid | failed.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create records a new pending intent.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (owner_id, external_id, provider, tariff_id, amount, currency, status, renew_vps_id, promo_code, discount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		p.OwnerID, p.ExternalID, p.Provider, p.TariffID, p.Amount, p.Currency, p.Status, p.RenewVpsID, p.PromoCode, p.Discount,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByExternalID looks up an intent by the provider's payment id.
func (r *PaymentRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	query := `
		SELECT id, owner_id, external_id, provider, tariff_id, amount, currency, status, renew_vps_id, promo_code, discount, created_at
		FROM payments
		WHERE external_id = $1
	`
	return r.scanPayment(r.pool.QueryRow(ctx, query, externalID))
}

// MarkPaid transitions the intent to paid, only if still pending.
// Returns whether a transition actually happened.
func (r *PaymentRepository) MarkPaid(ctx context.Context, externalID string) (bool, error) {
	return r.markStatus(ctx, externalID, models.PaymentStatusPaid)
}

// MarkFailed transitions the intent to failed, only if still pending.
func (r *PaymentRepository) MarkFailed(ctx context.Context, externalID string) (bool, error) {
	return r.markStatus(ctx, externalID, models.PaymentStatusFailed)
}

func (r *PaymentRepository) markStatus(ctx context.Context, externalID string, status models.PaymentStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payments SET status = $1 WHERE external_id = $2 AND status = 'pending'`,
		status, externalID)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountRecentByOwner counts intents created by an owner within the
// window, used for the payment-attempt cooldown.
func (r *PaymentRepository) CountRecentByOwner(ctx context.Context, ownerID int64, windowSec int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM payments
		WHERE owner_id = $1 AND created_at > now() - $2 * interval '1 second'
	`, ownerID, windowSec).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent payments: %w", err)
	}
	return n, nil
}

// CountPaidByOwner counts completed purchases by an owner.
func (r *PaymentRepository) CountPaidByOwner(ctx context.Context, ownerID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM payments WHERE owner_id = $1 AND status = 'paid'`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count paid payments: %w", err)
	}
	return n, nil
}

func (r *PaymentRepository) scanPayment(row pgx.Row) (*models.Payment, error) {
	p := &models.Payment{}
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.ExternalID, &p.Provider, &p.TariffID,
		&p.Amount, &p.Currency, &p.Status, &p.RenewVpsID, &p.PromoCode, &p.Discount, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return p, nil
}

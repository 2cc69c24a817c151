package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skyden/vps-platform/provisioning-service/internal/models"
)

// PromoRepository stores discount codes and their usage ledger. Codes
// are matched case-insensitively; the stored form is always upper case.
// Redemption counts usage and enforces max_uses in one statement, so
// two concurrent purchases cannot push a code past its limit.
type PromoRepository struct {
	pool *pgxpool.Pool
}

func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

const promoColumns = `id, code, promo_type, value, max_uses, uses_count, is_active,
	expires_at, only_tariffs, one_per_user, created_by, created_at`

// Create registers a new code. The code is stored upper-cased.
func (r *PromoRepository) Create(ctx context.Context, p *models.PromoCode) error {
	p.Code = strings.ToUpper(p.Code)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO promo_codes (code, promo_type, value, max_uses, is_active, expires_at, only_tariffs, one_per_user, created_by)
		VALUES ($1, $2, $3, $4, true, $5, $6, $7, $8)
		RETURNING id, created_at
	`, p.Code, p.Type, p.Value, p.MaxUses, p.ExpiresAt, p.OnlyTariffs, p.OnePerUser, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert promo: %w", err)
	}
	log.Printf("[promo] Created code %s (%s %.2f)", p.Code, p.Type, p.Value)
	return nil
}

// GetByCode looks up a code, or ErrNotFound.
func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = $1`, strings.ToUpper(code))
	return r.scanPromo(row)
}

// HasUsed reports whether the owner already redeemed this code.
func (r *PromoRepository) HasUsed(ctx context.Context, promoID, ownerID int64) (bool, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM promo_usages WHERE promo_id = $1 AND owner_id = $2`,
		promoID, ownerID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count promo usage: %w", err)
	}
	return n > 0, nil
}

// Redeem records one usage and bumps the counter, refusing when the
// code is inactive or its activation limit is already reached. Returns
// whether the redemption happened.
func (r *PromoRepository) Redeem(ctx context.Context, promoID, ownerID int64, tariffID string, discount float64, currency string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE promo_codes
		SET uses_count = uses_count + 1
		WHERE id = $1 AND is_active AND (max_uses = 0 OR uses_count < max_uses)
	`, promoID)
	if err != nil {
		return false, fmt.Errorf("bump promo usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO promo_usages (promo_id, owner_id, tariff_id, discount_amount, currency)
		VALUES ($1, $2, $3, $4, $5)
	`, promoID, ownerID, tariffID, discount, currency); err != nil {
		return false, fmt.Errorf("record promo usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// Deactivate turns a code off; returns whether it existed.
func (r *PromoRepository) Deactivate(ctx context.Context, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE promo_codes SET is_active = false WHERE code = $1`, strings.ToUpper(code))
	if err != nil {
		return false, fmt.Errorf("deactivate promo: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns the most recently created codes.
func (r *PromoRepository) List(ctx context.Context, limit int) ([]*models.PromoCode, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+promoColumns+` FROM promo_codes ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list promos: %w", err)
	}
	defer rows.Close()

	var out []*models.PromoCode
	for rows.Next() {
		p, err := r.scanPromo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PromoRepository) scanPromo(row pgx.Row) (*models.PromoCode, error) {
	p := &models.PromoCode{}
	err := row.Scan(
		&p.ID, &p.Code, &p.Type, &p.Value, &p.MaxUses, &p.UsesCount, &p.IsActive,
		&p.ExpiresAt, &p.OnlyTariffs, &p.OnePerUser, &p.CreatedBy, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan promo: %w", err)
	}
	return p, nil
}

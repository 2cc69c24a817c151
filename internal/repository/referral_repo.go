package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReferralRepository tracks who referred whom, the one-shot bonus flag,
// and the bonus balance ledger. Credit and the bonus_paid check-and-set
// happen in one transaction so at most one payout per referred user can
// ever succeed; balance rows are locked so concurrent referral credit
// and autorenew debit never lose updates.
type ReferralRepository struct {
	pool *pgxpool.Pool
}

func NewReferralRepository(pool *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{pool: pool}
}

// Register links referred to referrer. Self-referrals and repeat
// registrations are ignored; returns whether a new link was created.
func (r *ReferralRepository) Register(ctx context.Context, referrerID, referredID int64) (bool, error) {
	if referrerID == referredID {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO referrals (referrer_id, referred_id)
		VALUES ($1, $2)
		ON CONFLICT (referred_id) DO NOTHING
	`, referrerID, referredID)
	if err != nil {
		return false, fmt.Errorf("register referral: %w", err)
	}
	if tag.RowsAffected() > 0 {
		log.Printf("[referral] Registered: %d -> %d", referrerID, referredID)
		return true, nil
	}
	return false, nil
}

// GetReferrer returns the referrer of a user, or ErrNotFound.
func (r *ReferralRepository) GetReferrer(ctx context.Context, referredID int64) (int64, error) {
	var referrerID int64
	err := r.pool.QueryRow(ctx,
		`SELECT referrer_id FROM referrals WHERE referred_id = $1`, referredID).Scan(&referrerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("get referrer: %w", err)
	}
	return referrerID, nil
}

// AwardBonus pays the one-time referral bonus for referredID's first
// purchase. Atomically: re-checks bonus_paid under lock, credits the
// referrer's balance bucket, and sets the flag with amount and
// timestamp. Returns the referrer id and whether a payout happened.
func (r *ReferralRepository) AwardBonus(ctx context.Context, referredID int64, bonusRUB, bonusUSDT float64, currency string) (int64, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var referrerID int64
	var bonusPaid bool
	err = tx.QueryRow(ctx, `
		SELECT referrer_id, bonus_paid FROM referrals
		WHERE referred_id = $1
		FOR UPDATE
	`, referredID).Scan(&referrerID, &bonusPaid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil // not a referred user
		}
		return 0, false, fmt.Errorf("lock referral row: %w", err)
	}
	if bonusPaid {
		return referrerID, false, nil
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO bonus_balances (owner_id) VALUES ($1)
		ON CONFLICT (owner_id) DO NOTHING
	`, referrerID); err != nil {
		return 0, false, fmt.Errorf("ensure balance row: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bonus_balances
		SET balance_rub = balance_rub + $1,
		    balance_usdt = balance_usdt + $2,
		    updated_at = now()
		WHERE owner_id = $3
	`, bonusRUB, bonusUSDT, referrerID); err != nil {
		return 0, false, fmt.Errorf("credit balance: %w", err)
	}

	amount := bonusRUB
	if currency == "USDT" {
		amount = bonusUSDT
	}
	if _, err := tx.Exec(ctx, `
		UPDATE referrals
		SET bonus_paid = true, bonus_amount = $1, bonus_currency = $2, paid_at = now()
		WHERE referred_id = $3
	`, amount, currency, referredID); err != nil {
		return 0, false, fmt.Errorf("mark bonus paid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit: %w", err)
	}
	return referrerID, true, nil
}

// DebitRUB withdraws from the RUB bucket if it covers the amount.
// The conditional update keeps the balance from going negative under
// concurrent credits and debits.
func (r *ReferralRepository) DebitRUB(ctx context.Context, ownerID int64, amount float64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bonus_balances
		SET balance_rub = balance_rub - $1, updated_at = now()
		WHERE owner_id = $2 AND balance_rub >= $1
	`, amount, ownerID)
	if err != nil {
		return false, fmt.Errorf("debit balance: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetBalance reads the owner's bonus balances; zeros when absent.
func (r *ReferralRepository) GetBalance(ctx context.Context, ownerID int64) (rub, usdt float64, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT balance_rub, balance_usdt FROM bonus_balances WHERE owner_id = $1`, ownerID).Scan(&rub, &usdt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("get balance: %w", err)
	}
	return rub, usdt, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentLockRepository is the duplicate-fulfillment guard: a short-lived
// lock keyed by external payment id. Provider webhooks and user-initiated
// "I paid" checks converge on the same fulfillment entry point, so the
// lock must be taken before any side effect.
//
// Locks expire so that a fulfillment that crashed mid-flight can be
// replayed later; the TTL has to exceed worst-case fulfillment latency.
type PaymentLockRepository struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewPaymentLockRepository(pool *pgxpool.Pool, ttl time.Duration) *PaymentLockRepository {
	return &PaymentLockRepository{pool: pool, ttl: ttl}
}

// Acquire takes the lock for key if it is absent or expired. Returns
// true iff this caller now holds it. A false return means another
// execution owns this payment; the caller must abandon, not retry.
func (r *PaymentLockRepository) Acquire(ctx context.Context, key string) (bool, error) {
	var got string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO payment_locks (key, locked_at, expires_at)
		VALUES ($1, now(), now() + $2 * interval '1 second')
		ON CONFLICT (key) DO UPDATE
			SET locked_at = now(),
			    expires_at = excluded.expires_at
			WHERE payment_locks.expires_at < now()
		RETURNING key
	`, key, int64(r.ttl.Seconds())).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("acquire payment lock: %w", err)
	}
	return true, nil
}

// Release drops the lock early. Normal completion can leave the lock to
// expire; release exists for tests and admin tooling.
func (r *PaymentLockRepository) Release(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM payment_locks WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("release payment lock: %w", err)
	}
	return nil
}

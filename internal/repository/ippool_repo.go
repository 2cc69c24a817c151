package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPoolExhausted is returned when no free address remains. It is a
// reported condition, surfaced to the user with a support contact.
var ErrPoolExhausted = errors.New("ip pool exhausted")

// IpPoolRepository hands out addresses from the fixed pool. Allocation
// is row-exclusive with skip-over for contended rows, so concurrent
// allocators never wait on each other and never double-allocate.
type IpPoolRepository struct {
	pool *pgxpool.Pool
}

func NewIpPoolRepository(pool *pgxpool.Pool) *IpPoolRepository {
	return &IpPoolRepository{pool: pool}
}

// Seed inserts configured addresses, keeping existing rows untouched.
// Called once at startup; new entries are merged in.
func (r *IpPoolRepository) Seed(ctx context.Context, ips []string) error {
	for _, ip := range ips {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO ip_pool (ip, in_use) VALUES ($1, false) ON CONFLICT (ip) DO NOTHING`, ip)
		if err != nil {
			return fmt.Errorf("seed ip %s: %w", ip, err)
		}
	}
	log.Printf("[ippool] Seeded pool with %d configured addresses", len(ips))
	return nil
}

// Allocate checks out one free address. Rows already locked by a
// concurrent allocation are skipped rather than waited on.
func (r *IpPoolRepository) Allocate(ctx context.Context) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var ip string
	err = tx.QueryRow(ctx, `
		SELECT ip FROM ip_pool
		WHERE in_use = false
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`).Scan(&ip)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrPoolExhausted
		}
		return "", fmt.Errorf("select free ip: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE ip_pool SET in_use = true WHERE ip = $1`, ip); err != nil {
		return "", fmt.Errorf("mark ip in use: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	return ip, nil
}

// Release returns an address to the pool. Releasing an already-free or
// unknown address is a no-op, which lets rollback and expiry cleanup
// run without coordination.
func (r *IpPoolRepository) Release(ctx context.Context, ip string) error {
	_, err := r.pool.Exec(ctx, `UPDATE ip_pool SET in_use = false WHERE ip = $1`, ip)
	if err != nil {
		return fmt.Errorf("release ip: %w", err)
	}
	return nil
}

// FreeCount reports how many addresses remain available.
func (r *IpPoolRepository) FreeCount(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM ip_pool WHERE in_use = false`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count free ips: %w", err)
	}
	return n, nil
}

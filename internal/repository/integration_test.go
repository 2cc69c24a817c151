//go:build integration

package repository

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// testPool connects to the database named by TEST_DATABASE_URL and
// makes sure the tables under test exist. These tests mutate shared
// tables; point them at a throwaway database.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS ip_pool (
			id     BIGSERIAL PRIMARY KEY,
			ip     TEXT NOT NULL UNIQUE,
			in_use BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS payment_locks (
			key        TEXT PRIMARY KEY,
			locked_at  TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, q := range ddl {
		if _, err := pool.Exec(context.Background(), q); err != nil {
			t.Fatalf("ensure schema: %v", err)
		}
	}
	return pool
}

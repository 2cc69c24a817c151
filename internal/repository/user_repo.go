package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skyden/vps-platform/provisioning-service/internal/models"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetOrCreate finds or registers a user, refreshing the profile fields.
// Returns the user and whether it was newly created.
func (r *UserRepository) GetOrCreate(ctx context.Context, ownerID int64, username, fullName *string) (*models.User, bool, error) {
	u, err := r.GetByOwnerID(ctx, ownerID)
	if err == nil {
		_, err = r.pool.Exec(ctx,
			`UPDATE users SET username = $1, full_name = $2 WHERE owner_id = $3`,
			username, fullName, ownerID)
		if err != nil {
			return nil, false, fmt.Errorf("refresh user: %w", err)
		}
		u.Username = username
		u.FullName = fullName
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	u = &models.User{OwnerID: ownerID, Username: username, FullName: fullName}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO users (owner_id, username, full_name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, ownerID, username, fullName).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	return u, true, nil
}

func (r *UserRepository) GetByOwnerID(ctx context.Context, ownerID int64) (*models.User, error) {
	u := &models.User{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, username, full_name, is_banned, created_at
		FROM users WHERE owner_id = $1
	`, ownerID).Scan(&u.ID, &u.OwnerID, &u.Username, &u.FullName, &u.IsBanned, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skyden/vps-platform/provisioning-service/internal/models"
)

const vpsColumns = `id, owner_id, vmid, hostname, ip, credential, tariff_id, status,
	auto_renew, expires_at, reminded_3d, reminded_1d, created_at`

type VpsRepository struct {
	pool *pgxpool.Pool
}

func NewVpsRepository(pool *pgxpool.Pool) *VpsRepository {
	return &VpsRepository{pool: pool}
}

// Create persists a freshly provisioned server.
func (r *VpsRepository) Create(ctx context.Context, v *models.Vps) error {
	query := `
		INSERT INTO vps (owner_id, vmid, hostname, ip, credential, tariff_id, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		v.OwnerID, v.VMID, v.Hostname, v.IP, v.Credential, v.TariffID, v.Status, v.ExpiresAt,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert vps: %w", err)
	}
	return nil
}

func (r *VpsRepository) GetByID(ctx context.Context, id int64) (*models.Vps, error) {
	return r.scanVps(r.pool.QueryRow(ctx,
		`SELECT `+vpsColumns+` FROM vps WHERE id = $1`, id))
}

// GetByOwner lists an owner's servers that are not deleted.
func (r *VpsRepository) GetByOwner(ctx context.Context, ownerID int64) ([]*models.Vps, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+vpsColumns+` FROM vps
		WHERE owner_id = $1 AND status != 'deleted'
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query owner vps: %w", err)
	}
	defer rows.Close()
	return r.scanVpsRows(rows)
}

// CountActiveByOwner counts an owner's live servers, for the per-user limit.
func (r *VpsRepository) CountActiveByOwner(ctx context.Context, ownerID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM vps WHERE owner_id = $1 AND status != 'deleted'`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count owner vps: %w", err)
	}
	return n, nil
}

// Extend moves the expiry forward and clears both reminder flags.
func (r *VpsRepository) Extend(ctx context.Context, id int64, newExpiry time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE vps SET expires_at = $1, reminded_3d = false, reminded_1d = false
		WHERE id = $2
	`, newExpiry, id)
	if err != nil {
		return fmt.Errorf("extend vps: %w", err)
	}
	return nil
}

// GetExpiring returns active servers whose expiry falls within a
// +/-12h window around now+days and that have not been reminded yet.
func (r *VpsRepository) GetExpiring(ctx context.Context, days int) ([]*models.Vps, error) {
	field := "reminded_1d"
	if days == 3 {
		field = "reminded_3d"
	}
	query := fmt.Sprintf(`
		SELECT `+vpsColumns+` FROM vps
		WHERE status = 'active'
		  AND expires_at BETWEEN now() + $1 * interval '1 day' - interval '12 hours'
		                     AND now() + $1 * interval '1 day' + interval '12 hours'
		  AND %s = false
	`, field)

	rows, err := r.pool.Query(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("query expiring vps: %w", err)
	}
	defer rows.Close()
	return r.scanVpsRows(rows)
}

// GetExpired returns servers past expiry that are still active.
func (r *VpsRepository) GetExpired(ctx context.Context) ([]*models.Vps, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+vpsColumns+` FROM vps WHERE status = 'active' AND expires_at < now()`)
	if err != nil {
		return nil, fmt.Errorf("query expired vps: %w", err)
	}
	defer rows.Close()
	return r.scanVpsRows(rows)
}

// GetAutorenewCandidates returns active servers expiring within the
// next 24 hours whose owners enabled autorenew.
func (r *VpsRepository) GetAutorenewCandidates(ctx context.Context) ([]*models.Vps, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+vpsColumns+` FROM vps
		WHERE status = 'active' AND auto_renew = true
		  AND expires_at > now() AND expires_at <= now() + interval '24 hours'
	`)
	if err != nil {
		return nil, fmt.Errorf("query autorenew candidates: %w", err)
	}
	defer rows.Close()
	return r.scanVpsRows(rows)
}

// MarkReminded sets the reminder flag for the given window.
func (r *VpsRepository) MarkReminded(ctx context.Context, id int64, days int) error {
	field := "reminded_1d"
	if days == 3 {
		field = "reminded_3d"
	}
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`UPDATE vps SET %s = true WHERE id = $1`, field), id)
	if err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	return nil
}

// MarkDeleted is the single mutation point for the deleted state.
func (r *VpsRepository) MarkDeleted(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE vps SET status = 'deleted' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	return nil
}

// SetAutoRenew toggles the owner's autorenew preference for a server.
func (r *VpsRepository) SetAutoRenew(ctx context.Context, id int64, enabled bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE vps SET auto_renew = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("set autorenew: %w", err)
	}
	return nil
}

func (r *VpsRepository) scanVps(row pgx.Row) (*models.Vps, error) {
	v := &models.Vps{}
	err := row.Scan(
		&v.ID, &v.OwnerID, &v.VMID, &v.Hostname, &v.IP, &v.Credential, &v.TariffID, &v.Status,
		&v.AutoRenew, &v.ExpiresAt, &v.Reminded3d, &v.Reminded1d, &v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan vps: %w", err)
	}
	return v, nil
}

func (r *VpsRepository) scanVpsRows(rows pgx.Rows) ([]*models.Vps, error) {
	var out []*models.Vps
	for rows.Next() {
		v := &models.Vps{}
		err := rows.Scan(
			&v.ID, &v.OwnerID, &v.VMID, &v.Hostname, &v.IP, &v.Credential, &v.TariffID, &v.Status,
			&v.AutoRenew, &v.ExpiresAt, &v.Reminded3d, &v.Reminded1d, &v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan vps row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

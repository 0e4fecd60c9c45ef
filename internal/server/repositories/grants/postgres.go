// Package grants provides PostgreSQL-backed access-grant persistence. The
// search core only reads grants through the coarse filter; the write side
// exists for grant administration and for exercising the revocation paths.
package grants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ztmed/emrsearch/internal/common"
	"github.com/ztmed/emrsearch/internal/dbx"
	"github.com/ztmed/emrsearch/internal/server/models"
)

// PostgresRepository implements grant storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Grant upserts the grant row keyed by (record_id, grantee_id).
func (r *PostgresRepository) Grant(ctx context.Context, grant *models.AccessGrant) error {
	query := `
		INSERT INTO access_control (record_id, grantee_id, permission_type, granted_by, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (record_id, grantee_id)
		DO UPDATE SET
			permission_type = EXCLUDED.permission_type,
			granted_by = EXCLUDED.granted_by,
			is_active = EXCLUDED.is_active,
			expires_at = EXCLUDED.expires_at;
	`
	_, err := r.db.ExecContext(ctx, query,
		grant.RecordID, grant.GranteeID, grant.PermissionType, grant.GrantedBy, grant.IsActive, grant.ExpiresAt)
	if err != nil {
		return fmt.Errorf("grant upsert: %w", err)
	}
	return nil
}

// Revoke marks the grant inactive.
func (r *PostgresRepository) Revoke(ctx context.Context, recordID, granteeID string) error {
	query := `UPDATE access_control SET is_active = FALSE WHERE record_id = $1 AND grantee_id = $2;`
	if _, err := r.db.ExecContext(ctx, query, recordID, granteeID); err != nil {
		return fmt.Errorf("grant revoke: %w", err)
	}
	return nil
}

// Get returns the stored grant row.
func (r *PostgresRepository) Get(ctx context.Context, recordID, granteeID string) (*models.AccessGrant, error) {
	query := `
		SELECT record_id, grantee_id, permission_type, granted_by, is_active, expires_at, created_at
		FROM access_control
		WHERE record_id = $1 AND grantee_id = $2;
	`
	var g models.AccessGrant
	err := r.db.QueryRowContext(ctx, query, recordID, granteeID).Scan(
		&g.RecordID, &g.GranteeID, &g.PermissionType, &g.GrantedBy, &g.IsActive, &g.ExpiresAt, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("grant select: %w", err)
	}
	return &g, nil
}

// Package envelopekeys persists wrapped per-record data keys. The wrapped
// key material is stored as a JSON document so local AEAD blobs and opaque
// external-transit ciphertexts share one persistence contract.
package envelopekeys

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ztmed/emrsearch/internal/common"
	"github.com/ztmed/emrsearch/internal/dbx"
	"github.com/ztmed/emrsearch/internal/server/models"
)

// PostgresRepository implements envelope key storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save stores the wrapped key at version MAX(version)+1 for the record.
// A conflicting (record_id, version) row is overwritten, keeping the contract
// that the latest version always reflects the most recent wrap.
func (r *PostgresRepository) Save(ctx context.Context, recordID string, wrapped *models.WrappedKey) (int64, error) {
	doc, err := json.Marshal(wrapped)
	if err != nil {
		return 0, fmt.Errorf("marshal wrapped key: %w", err)
	}

	query := `
		INSERT INTO envelope_keys (record_id, version, encrypted_data_key, algorithm, updated_at)
		VALUES ($1,
			COALESCE((SELECT MAX(version) FROM envelope_keys WHERE record_id = $1), 0) + 1,
			$2, $3, now())
		ON CONFLICT (record_id, version)
		DO UPDATE SET
			encrypted_data_key = EXCLUDED.encrypted_data_key,
			algorithm = EXCLUDED.algorithm,
			updated_at = now()
		RETURNING version;
	`
	var version int64
	if err := r.db.QueryRowContext(ctx, query, recordID, doc, wrapped.Algorithm).Scan(&version); err != nil {
		return 0, fmt.Errorf("envelope key save: %w", err)
	}
	return version, nil
}

// LoadLatest selects the highest-version wrapped key for the record.
func (r *PostgresRepository) LoadLatest(ctx context.Context, recordID string) (*models.EnvelopeKeyRecord, error) {
	query := `
		SELECT record_id, version, encrypted_data_key, updated_at
		FROM envelope_keys
		WHERE record_id = $1
		ORDER BY version DESC
		LIMIT 1;
	`
	var (
		rec models.EnvelopeKeyRecord
		doc []byte
	)
	err := r.db.QueryRowContext(ctx, query, recordID).Scan(&rec.RecordID, &rec.Version, &doc, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("envelope key load: %w", err)
	}
	if err := json.Unmarshal(doc, &rec.Wrapped); err != nil {
		return nil, fmt.Errorf("unmarshal wrapped key: %w", err)
	}
	return &rec, nil
}

// Package records stores the minimal server-side record view used by the
// search core: ownership plus indexable metadata. Record content stays in
// the external record store.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ztmed/emrsearch/internal/common"
	"github.com/ztmed/emrsearch/internal/dbx"
	"github.com/ztmed/emrsearch/internal/server/models"
)

// PostgresRepository implements record metadata storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save upserts the record row by id.
func (r *PostgresRepository) Save(ctx context.Context, record *models.MedicalRecord) error {
	query := `
		INSERT INTO medical_records (record_id, patient_id, creator_id, title, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (record_id)
		DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			creator_id = EXCLUDED.creator_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			updated_at = now();
	`
	_, err := r.db.ExecContext(ctx, query,
		record.RecordID, record.PatientID, record.CreatorID, record.Title, record.Description)
	if err != nil {
		return fmt.Errorf("record upsert: %w", err)
	}
	return nil
}

// Get returns the record metadata row.
func (r *PostgresRepository) Get(ctx context.Context, recordID string) (*models.MedicalRecord, error) {
	query := `
		SELECT record_id, patient_id, creator_id, title, description, created_at, updated_at
		FROM medical_records
		WHERE record_id = $1;
	`
	var m models.MedicalRecord
	err := r.db.QueryRowContext(ctx, query, recordID).Scan(
		&m.RecordID, &m.PatientID, &m.CreatorID, &m.Title, &m.Description, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record select: %w", err)
	}
	return &m, nil
}

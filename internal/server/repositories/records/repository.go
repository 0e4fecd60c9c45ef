package records

import (
	"context"

	"github.com/ztmed/emrsearch/internal/server/models"
)

type Repository interface {
	// Save upserts the ownership/metadata row for a record.
	Save(ctx context.Context, record *models.MedicalRecord) error

	// Get returns the record metadata, or common.ErrNotFound.
	Get(ctx context.Context, recordID string) (*models.MedicalRecord, error)
}

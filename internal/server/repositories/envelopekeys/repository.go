package envelopekeys

import (
	"context"

	"github.com/ztmed/emrsearch/internal/server/models"
)

type Repository interface {
	// Save persists a wrapped data key for the record at version latest+1
	// (ON CONFLICT update) and returns the assigned version.
	Save(ctx context.Context, recordID string, wrapped *models.WrappedKey) (int64, error)

	// LoadLatest returns the highest-version wrapped key for the record, or
	// common.ErrNotFound when none exists.
	LoadLatest(ctx context.Context, recordID string) (*models.EnvelopeKeyRecord, error)
}

package grants

import (
	"context"

	"github.com/ztmed/emrsearch/internal/server/models"
)

type Repository interface {
	// Grant upserts an access grant, reactivating a previously revoked one.
	Grant(ctx context.Context, grant *models.AccessGrant) error

	// Revoke deactivates the grant for (recordID, granteeID). Revoking a
	// grant that does not exist is a no-op.
	Revoke(ctx context.Context, recordID, granteeID string) error

	// Get returns the grant row for (recordID, granteeID), or
	// common.ErrNotFound.
	Get(ctx context.Context, recordID, granteeID string) (*models.AccessGrant, error)
}

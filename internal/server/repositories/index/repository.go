package index

import (
	"context"

	"github.com/ztmed/emrsearch/internal/server/models"
)

type Repository interface {
	// Upsert inserts index rows idempotently; re-inserting an existing
	// (tokenHash, recordID, field) combination never creates a duplicate.
	Upsert(ctx context.Context, entries []*models.IndexEntry) (*models.UpsertResult, error)

	// Candidates returns records matching any of the token hashes that the
	// user either owns or holds an active, unexpired grant on, with match
	// counts aggregated per record.
	Candidates(ctx context.Context, tokenHashes []string, userID string) ([]*models.Candidate, error)
}

// Package accessgate enforces the two-layer authorization check gating which
// records a search may reveal: a coarse SQL ownership/grant filter, then an
// authoritative per-record check against the ledger oracle. Both layers must
// agree before a record is released.
package accessgate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ztmed/emrsearch/internal/logging"
	"github.com/ztmed/emrsearch/internal/server/ledger"
	"github.com/ztmed/emrsearch/internal/server/models"
	"github.com/ztmed/emrsearch/internal/server/repositories/index"
)

// DefaultBatchSize bounds how many ledger calls run in flight at once.
const DefaultBatchSize = 4

// Gate runs the two-layer access check.
type Gate struct {
	index     index.Repository
	oracle    ledger.Oracle
	batchSize int
	logger    logging.Logger
}

// New constructs a Gate. A batchSize < 1 falls back to DefaultBatchSize.
func New(idx index.Repository, oracle ledger.Oracle, batchSize int, logger logging.Logger) *Gate {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Gate{
		index:     idx,
		oracle:    oracle,
		batchSize: batchSize,
		logger:    logger.With("module", "accessgate"),
	}
}

// AllowedCandidates returns the records matching the token hashes that
// userID may see: the coarse index/grant join bounds the candidate set, the
// ledger oracle then confirms every candidate the user does not own.
func (g *Gate) AllowedCandidates(ctx context.Context, tokenHashes []string, userID string) ([]*models.Candidate, error) {
	candidates, err := g.index.Candidates(ctx, tokenHashes, userID)
	if err != nil {
		return nil, err
	}
	return g.Filter(ctx, candidates, userID)
}

// Filter applies the authoritative ledger check to candidates, preserving
// input order. Checks run in batches of the configured size: full
// parallelism within a batch, strict sequencing between batches, so peak
// in-flight ledger calls stay bounded regardless of candidate count.
// An oracle failure denies that record; it never fails open.
func (g *Gate) Filter(ctx context.Context, candidates []*models.Candidate, userID string) ([]*models.Candidate, error) {
	allowed := make([]bool, len(candidates))

	for start := 0; start < len(candidates); start += g.batchSize {
		end := start + g.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		eg := errgroup.Group{}
		for i := start; i < end; i++ {
			c := candidates[i]
			if c.Owned(userID) {
				allowed[i] = true
				continue
			}
			i := i
			eg.Go(func() error {
				ok, err := g.oracle.CheckAccess(ctx, c.RecordID, userID)
				if err != nil {
					g.logger.Warn(ctx, "ledger access check failed, denying record",
						"record_id", c.RecordID, "error", err.Error())
					ok = false
				}
				allowed[i] = ok
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	result := make([]*models.Candidate, 0, len(candidates))
	for i, c := range candidates {
		if allowed[i] {
			result = append(result, c)
		}
	}
	return result, nil
}

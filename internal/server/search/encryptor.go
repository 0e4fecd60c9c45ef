package search

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/ztmed/emrsearch/internal/cryptox"
	"github.com/ztmed/emrsearch/internal/server/models"
)

// ResultEncryptor packages matched records into per-request encrypted
// payloads tied to a key id. Only the minimal summary is serialized; raw
// record content never enters this path.
type ResultEncryptor struct {
	batchSize int
}

// NewResultEncryptor builds an encryptor processing batchSize summaries in
// parallel per batch.
func NewResultEncryptor(batchSize int) *ResultEncryptor {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &ResultEncryptor{batchSize: batchSize}
}

// EncryptCandidates serializes each candidate's summary and seals it under
// key, stamping every result with keyID. Work runs in fixed-size batches:
// parallel within a batch, sequential between batches, and output order
// mirrors input order.
func (e *ResultEncryptor) EncryptCandidates(ctx context.Context, candidates []*models.Candidate, key []byte, keyID string) ([]*cryptox.EncryptionResult, error) {
	results := make([]*cryptox.EncryptionResult, len(candidates))

	for start := 0; start < len(candidates); start += e.batchSize {
		end := start + e.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		eg := errgroup.Group{}
		for i := start; i < end; i++ {
			i := i
			c := candidates[i]
			eg.Go(func() error {
				summary := models.RecordSummary{
					RecordID:   c.RecordID,
					Title:      c.Title,
					PatientID:  c.PatientID,
					CreatorID:  c.CreatorID,
					CreatedAt:  c.CreatedAt,
					UpdatedAt:  c.UpdatedAt,
					MatchCount: c.MatchCount,
				}
				plaintext, err := json.Marshal(summary)
				if err != nil {
					return err
				}
				res, err := cryptox.Encrypt(plaintext, key)
				if err != nil {
					return err
				}
				res.KeyID = keyID
				results[i] = res
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	return results, nil
}

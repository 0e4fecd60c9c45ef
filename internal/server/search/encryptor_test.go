package search

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ztmed/emrsearch/internal/common"
	"github.com/ztmed/emrsearch/internal/cryptox"
	"github.com/ztmed/emrsearch/internal/server/models"
)

func makeCandidates(n int) []*models.Candidate {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*models.Candidate, n)
	for i := range out {
		out[i] = &models.Candidate{
			RecordID:   fmt.Sprintf("rec-%d", i),
			PatientID:  "patient-1",
			CreatorID:  "doctor-1",
			Title:      fmt.Sprintf("record %d", i),
			MatchCount: n - i,
			CreatedAt:  base,
			UpdatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestEncryptCandidates_RoundTripAndOrder(t *testing.T) {
	key := common.GenerateRandByteArray(cryptox.KeySize)
	enc := NewResultEncryptor(3)

	candidates := makeCandidates(10)
	results, err := enc.EncryptCandidates(context.Background(), candidates, key, "search-1")
	require.NoError(t, err)
	require.Len(t, results, 10)

	for i, res := range results {
		assert.Equal(t, "search-1", res.KeyID)

		plaintext, err := cryptox.Decrypt(res, key)
		require.NoError(t, err)

		var summary models.RecordSummary
		require.NoError(t, json.Unmarshal(plaintext, &summary))
		assert.Equal(t, candidates[i].RecordID, summary.RecordID, "output order mirrors input order")
		assert.Equal(t, candidates[i].MatchCount, summary.MatchCount)
	}
}

func TestEncryptCandidates_DistinctNonces(t *testing.T) {
	key := common.GenerateRandByteArray(cryptox.KeySize)
	enc := NewResultEncryptor(4)

	results, err := enc.EncryptCandidates(context.Background(), makeCandidates(6), key, "search-1")
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for _, res := range results {
		seen[string(res.IV)] = struct{}{}
	}
	assert.Len(t, seen, 6)
}

func TestEncryptCandidates_Empty(t *testing.T) {
	key := common.GenerateRandByteArray(cryptox.KeySize)
	results, err := NewResultEncryptor(4).EncryptCandidates(context.Background(), nil, key, "search-1")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEncryptCandidates_BadKey(t *testing.T) {
	_, err := NewResultEncryptor(4).EncryptCandidates(context.Background(), makeCandidates(1), []byte("short"), "search-1")
	assert.ErrorIs(t, err, common.ErrCrypto)
}

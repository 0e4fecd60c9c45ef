// Package tokenizer produces deterministic search tokens and their one-way
// hashes, and writes them into the encrypted search index. Plaintext tokens
// never leave this process; only SHA-256 digests are persisted.
package tokenizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ztmed/emrsearch/internal/common"
	"github.com/ztmed/emrsearch/internal/server/models"
	"github.com/ztmed/emrsearch/internal/server/repositories/index"
)

// Mode selects the tokenization strategy.
type Mode string

const (
	// ModeKeyword lowercases and splits on whitespace, dropping short tokens.
	ModeKeyword Mode = "keyword"

	// ModeFuzzy additionally emits all 3-character substrings of longer tokens.
	ModeFuzzy Mode = "fuzzy"

	// ModeSemantic additionally expands a fixed domain synonym table.
	ModeSemantic Mode = "semantic"
)

// minTokenLen is exclusive: tokens of this length or shorter are discarded.
const minTokenLen = 2

// synonyms is the fixed medical-domain expansion table for ModeSemantic.
// Keys and values are already lowercase. Multiword expansions are split into
// keyword tokens before hashing, and every word must clear minTokenLen,
// so each expansion can actually match indexed document tokens.
var synonyms = map[string][]string{
	"diabetes":     {"glucose", "insulin", "glycemic"},
	"hypertension": {"blood pressure"},
	"cardiac":      {"heart", "cardiovascular"},
	"cancer":       {"tumor", "oncology", "malignant"},
	"fracture":     {"break", "broken bone"},
	"renal":        {"kidney", "nephro"},
	"hepatic":      {"liver"},
	"pulmonary":    {"lung", "respiratory"},
	"stroke":       {"cerebrovascular", "cva"},
	"infection":    {"sepsis", "bacterial", "viral"},
}

// Tokenize splits query into a deduplicated, sorted token set for the given
// mode. Identical input and mode always yield an identical set; sorting
// makes the order deterministic as well.
func Tokenize(query string, mode Mode) ([]string, error) {
	switch mode {
	case ModeKeyword, ModeFuzzy, ModeSemantic:
	default:
		return nil, fmt.Errorf("%w: unknown tokenize mode %q", common.ErrValidation, mode)
	}

	seen := make(map[string]struct{})
	add := func(tok string) {
		if len(tok) > minTokenLen {
			seen[tok] = struct{}{}
		}
	}

	for _, raw := range strings.Fields(strings.ToLower(query)) {
		add(raw)

		if mode == ModeFuzzy {
			if r := []rune(raw); len(r) > 3 {
				for i := 0; i+3 <= len(r); i++ {
					add(string(r[i : i+3]))
				}
			}
		}

		if mode == ModeSemantic {
			for _, syn := range synonyms[raw] {
				for _, word := range strings.Fields(syn) {
					add(word)
				}
			}
		}
	}

	tokens := make([]string, 0, len(seen))
	for tok := range seen {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return tokens, nil
}

// HashToken returns the one-way SHA-256 hex digest of a token. The digest is
// stable across calls and the token is not recoverable from it.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HashTokens maps HashToken over a token set.
func HashTokens(tokens []string) []string {
	hashes := make([]string, len(tokens))
	for i, tok := range tokens {
		hashes[i] = HashToken(tok)
	}
	return hashes
}

// Indexer writes token hashes into the encrypted search index.
type Indexer struct {
	repo index.Repository
}

// NewIndexer constructs an Indexer over the given index repository.
func NewIndexer(repo index.Repository) *Indexer {
	return &Indexer{repo: repo}
}

// UpsertIndex hashes the tokens and upserts (tokenHash, recordID, field)
// rows. An empty token list is a no-op returning zero counts. The returned
// counts are approximate (see models.UpsertResult).
func (ix *Indexer) UpsertIndex(ctx context.Context, recordID string, tokens []string, field string) (*models.UpsertResult, error) {
	if recordID == "" || field == "" {
		return nil, fmt.Errorf("%w: record id and field are required", common.ErrValidation)
	}
	if len(tokens) == 0 {
		return &models.UpsertResult{}, nil
	}

	now := time.Now().UTC()
	entries := make([]*models.IndexEntry, 0, len(tokens))
	for _, tok := range tokens {
		entries = append(entries, &models.IndexEntry{
			IndexID:   uuid.NewString(),
			TokenHash: HashToken(tok),
			RecordID:  recordID,
			Field:     field,
			CreatedAt: now,
		})
	}
	return ix.repo.Upsert(ctx, entries)
}

// IndexRecord tokenizes the record's title and description with the keyword
// strategy and writes both field indexes.
func (ix *Indexer) IndexRecord(ctx context.Context, record *models.MedicalRecord) error {
	fields := []struct {
		name string
		text string
	}{
		{"title", record.Title},
		{"description", record.Description},
	}

	for _, f := range fields {
		tokens, err := Tokenize(f.text, ModeKeyword)
		if err != nil {
			return err
		}
		if _, err := ix.UpsertIndex(ctx, record.RecordID, tokens, f.name); err != nil {
			return err
		}
	}
	return nil
}

// Package search orchestrates the encrypted search pipeline: query
// decryption, tokenization, the two-layer access gate, result encryption,
// and the session handoff that lets the same user fetch its decryption
// context later.
package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ztmed/emrsearch/internal/common"
	"github.com/ztmed/emrsearch/internal/cryptox"
	"github.com/ztmed/emrsearch/internal/logging"
	"github.com/ztmed/emrsearch/internal/server/accessgate"
	"github.com/ztmed/emrsearch/internal/server/auth"
	"github.com/ztmed/emrsearch/internal/server/kms"
	"github.com/ztmed/emrsearch/internal/server/models"
	"github.com/ztmed/emrsearch/internal/server/repositories/repomanager"
	"github.com/ztmed/emrsearch/internal/server/tokenizer"
)

const (
	// MaxResults is the hard cap on records returned by one search.
	MaxResults = 100

	// DefaultBatchSize bounds parallel result encryption.
	DefaultBatchSize = 4
)

// Request is a submitted search: the query encrypted under the key derived
// from the caller's access token.
type Request struct {
	EncryptedQuery *cryptox.EncryptionResult `json:"encryptedQuery"`
	AccessToken    string                    `json:"accessToken"`
	Mode           tokenizer.Mode            `json:"mode,omitempty"`
	MinMatch       int                       `json:"minMatch,omitempty"`
}

// Response is the outcome of a submitted search.
type Response struct {
	SearchID         string                      `json:"searchId"`
	EncryptedIndexes []*cryptox.EncryptionResult `json:"encryptedIndexes"`
	AccessVerified   bool                        `json:"accessVerified"`
	TotalMatches     int                         `json:"totalMatches"`
	ProcessingTime   time.Duration               `json:"processingTime"`
}

// DecryptionContext names the keys a session's results were sealed with.
type DecryptionContext struct {
	SearchID string   `json:"searchId"`
	KeyIDs   []string `json:"keyIds"`
}

// Engine runs the search pipeline. Construct one at startup and share it; it
// owns the session cache lifecycle.
type Engine struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	gate      *accessgate.Gate
	keys      *kms.Manager
	encryptor *ResultEncryptor
	sessions  *SessionCache
	jwtSecret []byte
	kdfIters  int
	now       func() time.Time
	logger    logging.Logger
}

// Options configures an Engine.
type Options struct {
	JWTSecret        []byte
	PBKDF2Iterations int
	SessionTTL       time.Duration
	EncryptBatchSize int
	// Clock overrides time.Now, for deterministic tests.
	Clock func() time.Time
}

// NewEngine wires the pipeline. All collaborators are explicit; nothing is
// reached through package-level state.
func NewEngine(db *sql.DB, repos repomanager.RepositoryManager, gate *accessgate.Gate, keys *kms.Manager, opts Options, logger logging.Logger) *Engine {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		db:        db,
		repos:     repos,
		gate:      gate,
		keys:      keys,
		encryptor: NewResultEncryptor(opts.EncryptBatchSize),
		sessions:  NewSessionCache(opts.SessionTTL, now),
		jwtSecret: opts.JWTSecret,
		kdfIters:  opts.PBKDF2Iterations,
		now:       now,
		logger:    logger.With("module", "search"),
	}
}

// Sessions exposes the session cache for observability.
func (e *Engine) Sessions() *SessionCache {
	return e.sessions
}

// SubmitSearch runs the full pipeline for one request. A search always runs
// to completion or failure; partial results are never returned.
func (e *Engine) SubmitSearch(ctx context.Context, req *Request) (*Response, error) {
	started := e.now()

	if req == nil || req.EncryptedQuery == nil || req.AccessToken == "" {
		return nil, fmt.Errorf("%w: encrypted query and access token are required", common.ErrValidation)
	}

	userID, err := auth.GetUserIDFromToken(req.AccessToken, e.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: access verification failed", common.ErrUnauthorized)
	}

	queryKey := auth.QueryKeyFromToken(req.AccessToken, e.kdfIters)
	plaintext, err := cryptox.Decrypt(req.EncryptedQuery, queryKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid encrypted query or access token", common.ErrCrypto)
	}
	query := string(plaintext)

	mode := req.Mode
	if mode == "" {
		mode = tokenizer.ModeKeyword
	}
	tokens, err := tokenizer.Tokenize(query, mode)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: query produced no searchable tokens", common.ErrValidation)
	}

	candidates, err := e.gate.AllowedCandidates(ctx, tokenizer.HashTokens(tokens), userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}

	if req.MinMatch > 1 {
		kept := candidates[:0]
		for _, c := range candidates {
			if c.MatchCount >= req.MinMatch {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].MatchCount != candidates[j].MatchCount {
			return candidates[i].MatchCount > candidates[j].MatchCount
		}
		return candidates[i].UpdatedAt.After(candidates[j].UpdatedAt)
	})

	total := len(candidates)
	if len(candidates) > MaxResults {
		candidates = candidates[:MaxResults]
	}

	searchID := uuid.NewString()
	encrypted, err := e.encryptor.EncryptCandidates(ctx, candidates, queryKey, searchID)
	if err != nil {
		return nil, fmt.Errorf("%w: result encryption failed", common.ErrCrypto)
	}

	e.sessions.Put(&Session{
		SearchID:  searchID,
		UserID:    userID,
		Query:     query,
		Indexes:   encrypted,
		Timestamp: e.now(),
	})

	e.logger.Info(ctx, "search completed",
		"search_id", searchID, "user_id", userID,
		"tokens", len(tokens), "matches", total, "returned", len(encrypted))

	return &Response{
		SearchID:         searchID,
		EncryptedIndexes: encrypted,
		AccessVerified:   true,
		TotalMatches:     total,
		ProcessingTime:   e.now().Sub(started),
	}, nil
}

// GetDecryptionContext returns the key ids for a session, only to the user
// who created it. Absent and foreign sessions are indistinguishable to the
// caller.
func (e *Engine) GetDecryptionContext(searchID, userID string) (*DecryptionContext, error) {
	session, ok := e.sessions.Get(searchID)
	if !ok || session.UserID != userID {
		return nil, fmt.Errorf("%w: invalid search ID or unauthorized access", common.ErrNotFound)
	}

	seen := make(map[string]struct{})
	keyIDs := make([]string, 0, 1)
	for _, res := range session.Indexes {
		if _, dup := seen[res.KeyID]; !dup {
			seen[res.KeyID] = struct{}{}
			keyIDs = append(keyIDs, res.KeyID)
		}
	}

	return &DecryptionContext{SearchID: searchID, KeyIDs: keyIDs}, nil
}

// DecryptSearchResults opens each encrypted payload with key. A non-empty
// allowlist rejects payloads sealed under other key ids. Tampered
// ciphertexts and malformed payloads are errors; nothing partial is
// returned.
func (e *Engine) DecryptSearchResults(encryptedIndexes []*cryptox.EncryptionResult, keyIDAllowlist []string, key []byte) ([]*models.RecordSummary, error) {
	allowed := make(map[string]struct{}, len(keyIDAllowlist))
	for _, id := range keyIDAllowlist {
		allowed[id] = struct{}{}
	}

	summaries := make([]*models.RecordSummary, 0, len(encryptedIndexes))
	for _, res := range encryptedIndexes {
		if len(allowed) > 0 {
			if _, ok := allowed[res.KeyID]; !ok {
				return nil, fmt.Errorf("%w: key %q not permitted by decryption context", common.ErrCrypto, res.KeyID)
			}
		}

		plaintext, err := cryptox.Decrypt(res, key)
		if err != nil {
			return nil, err
		}
		var summary models.RecordSummary
		if err := json.Unmarshal(plaintext, &summary); err != nil {
			return nil, fmt.Errorf("%w: malformed result payload", common.ErrCrypto)
		}
		summaries = append(summaries, &summary)
	}
	return summaries, nil
}

// RegisterRecord stores the record's metadata, provisions its envelope data
// key, and indexes its searchable fields. It is the ingestion entry point
// the record-management layer calls after persisting content externally.
func (e *Engine) RegisterRecord(ctx context.Context, record *models.MedicalRecord) error {
	if record == nil || record.RecordID == "" {
		return fmt.Errorf("%w: record id is required", common.ErrValidation)
	}

	if err := e.repos.Records(e.db).Save(ctx, record); err != nil {
		return fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}

	dataKey := e.keys.GenerateDataKey(cryptox.KeySize)
	defer common.WipeByteArray(dataKey)
	if err := e.keys.SaveEnvelopeKey(ctx, record.RecordID, dataKey); err != nil {
		return err
	}

	indexer := tokenizer.NewIndexer(e.repos.Index(e.db))
	if err := indexer.IndexRecord(ctx, record); err != nil {
		return fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}

	e.logger.Info(ctx, "record registered", "record_id", record.RecordID)
	return nil
}

// RunSessionCleanup evicts expired sessions on the given interval until ctx
// is done. Meant to be started once by the application.
func (e *Engine) RunSessionCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := e.sessions.CleanupExpired()
			if evicted > 0 {
				e.logger.Debug(ctx, "expired search sessions evicted", "count", evicted)
			}
		}
	}
}

// Package index provides the PostgreSQL-backed encrypted search index:
// idempotent token-hash upserts and the coarse ownership/grant candidate
// query that feeds the access gate.
package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/ztmed/emrsearch/internal/dbx"
	"github.com/ztmed/emrsearch/internal/server/models"
)

// PostgresRepository implements index storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert bulk-inserts index rows with ON CONFLICT DO NOTHING. The returned
// Inserted count is approximate — min(affected rows, entry count) — because
// the bulk upsert cannot distinguish true inserts from duplicate no-ops.
// An empty slice is a no-op returning zero counts.
func (r *PostgresRepository) Upsert(ctx context.Context, entries []*models.IndexEntry) (*models.UpsertResult, error) {
	if len(entries) == 0 {
		return &models.UpsertResult{}, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO encrypted_search_index (index_id, token_hash, record_id, field) VALUES `)

	args := make([]any, 0, len(entries)*4)
	for i, e := range entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, e.IndexID, e.TokenHash, e.RecordID, e.Field)
	}
	sb.WriteString(` ON CONFLICT (token_hash, record_id, field) DO NOTHING;`)

	res, err := r.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("index upsert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected error: %w", err)
	}

	inserted := int(affected)
	if inserted > len(entries) {
		inserted = len(entries)
	}
	return &models.UpsertResult{Inserted: inserted, Skipped: len(entries) - inserted}, nil
}

// Candidates joins the index against the record store and the grant table,
// restricting to records the requester owns, created, or holds an active
// unexpired grant on. Match counts are distinct token hashes per record.
// Ordering is by match count, then recency, so the caller's result cap is a
// plain prefix.
func (r *PostgresRepository) Candidates(ctx context.Context, tokenHashes []string, userID string) ([]*models.Candidate, error) {
	if len(tokenHashes) == 0 {
		return nil, nil
	}

	query := `
		SELECT m.record_id, m.patient_id, m.creator_id, m.title,
			COUNT(DISTINCT i.token_hash) AS match_count,
			m.created_at, m.updated_at
		FROM encrypted_search_index i
		JOIN medical_records m ON m.record_id = i.record_id
		LEFT JOIN access_control a
			ON a.record_id = m.record_id AND a.grantee_id = $2
		WHERE i.token_hash = ANY($1)
			AND (m.patient_id = $2 OR m.creator_id = $2
				OR (a.is_active AND (a.expires_at IS NULL OR a.expires_at > now())))
		GROUP BY m.record_id, m.patient_id, m.creator_id, m.title, m.created_at, m.updated_at
		ORDER BY match_count DESC, m.updated_at DESC;
	`
	rows, err := r.db.QueryContext(ctx, query, tokenHashes, userID)
	if err != nil {
		return nil, fmt.Errorf("candidate query: %w", err)
	}
	defer rows.Close()

	var result []*models.Candidate
	for rows.Next() {
		var c models.Candidate
		if err := rows.Scan(
			&c.RecordID, &c.PatientID, &c.CreatorID, &c.Title,
			&c.MatchCount, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

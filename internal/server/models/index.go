package models

import "time"

// IndexEntry is one row of the encrypted search index. Only the one-way
// token hash is persisted; the token itself never leaves the process.
type IndexEntry struct {
	IndexID   string
	TokenHash string
	RecordID  string
	Field     string
	CreatedAt time.Time
}

// UpsertResult reports how an index upsert went. Inserted is approximate:
// the bulk upsert cannot distinguish true inserts from no-op duplicate
// conflicts, so it is computed as min(affected rows, token count).
type UpsertResult struct {
	Inserted int
	Skipped  int
}

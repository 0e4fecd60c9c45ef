// Package models defines server-side data models persisted in the database
// and the shapes exchanged between the search pipeline stages.
package models

import "time"

// MedicalRecord is the minimal server-side view of a record: ownership and
// indexable metadata only. Record content lives in the external record store
// and never reaches this process in plaintext.
type MedicalRecord struct {
	RecordID    string
	PatientID   string
	CreatorID   string
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RecordSummary is the non-sensitive projection of a matched record returned
// to searchers. It never carries record content.
type RecordSummary struct {
	RecordID   string    `json:"recordId"`
	Title      string    `json:"title"`
	PatientID  string    `json:"patientId"`
	CreatorID  string    `json:"creatorId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	MatchCount int       `json:"matchCount"`
}

// Candidate is a record that passed the coarse index/ownership filter,
// pending the authoritative ledger check.
type Candidate struct {
	RecordID   string
	PatientID  string
	CreatorID  string
	Title      string
	MatchCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Owned reports whether userID is the record's patient or creator.
// Owned candidates skip the ledger round trip.
func (c *Candidate) Owned(userID string) bool {
	return c.PatientID == userID || c.CreatorID == userID
}

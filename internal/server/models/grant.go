package models

import "time"

// AccessGrant mirrors one row of the access_control table. The grant
// registry is written by the record-management layer; the search core only
// needs it for the coarse permission filter, but the write side is exposed
// for administration and tests.
type AccessGrant struct {
	RecordID       string
	GranteeID      string
	PermissionType string
	GrantedBy      string
	IsActive       bool
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// Effective reports whether the grant allows access at the given instant:
// active and either unexpired or without an expiry.
func (g *AccessGrant) Effective(now time.Time) bool {
	if !g.IsActive {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

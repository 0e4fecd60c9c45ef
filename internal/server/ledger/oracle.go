// Package ledger consumes the distributed ledger's read-only access oracle.
// Only the "does user X have access to record Y" capability is used here;
// grant management and consensus live in the bridge service.
package ledger

import "context"

// Oracle answers authoritative per-record access questions. Implementations
// must be idempotent and side-effect-free from this system's perspective.
// Callers treat any error as access denied.
type Oracle interface {
	CheckAccess(ctx context.Context, recordID, userID string) (bool, error)
}

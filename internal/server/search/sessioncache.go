package search

import (
	"sync"
	"time"

	"github.com/ztmed/emrsearch/internal/cryptox"
)

// DefaultSessionTTL bounds how long a search session stays readable.
const DefaultSessionTTL = 30 * time.Minute

// Session links a result set to the user who may later request its
// decryption context. The plaintext query is held in memory only and never
// persisted.
type Session struct {
	SearchID  string
	UserID    string
	Query     string
	Indexes   []*cryptox.EncryptionResult
	Timestamp time.Time
}

// Statistics is the observability snapshot of the cache.
type Statistics struct {
	ActiveEntries int
	Keys          []string
	LastCleanup   time.Time
}

// SessionCache is an in-memory, TTL-scoped session store. Entries are
// immutable once written except for deletion during cleanup; a cleanup
// racing a concurrent read may return a just-evicted entry as "not found",
// which is acceptable. No persistence across restarts.
type SessionCache struct {
	mu          sync.RWMutex
	ttl         time.Duration
	now         func() time.Time
	entries     map[string]*Session
	lastCleanup time.Time
}

// NewSessionCache builds a cache with the given TTL and clock. A nil clock
// uses time.Now; a TTL <= 0 falls back to DefaultSessionTTL.
func NewSessionCache(ttl time.Duration, now func() time.Time) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &SessionCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]*Session),
	}
}

// Put stores the session under its search id.
func (c *SessionCache) Put(session *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[session.SearchID] = session
}

// Get returns the session for searchID if present and not yet expired.
// Access control by user id is the caller's concern, enforced at read time.
func (c *SessionCache) Get(searchID string) (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.entries[searchID]
	if !ok {
		return nil, false
	}
	if c.now().Sub(s.Timestamp) > c.ttl {
		return nil, false
	}
	return s, true
}

// CleanupExpired scans all entries and removes those older than the TTL,
// returning the number evicted.
func (c *SessionCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for id, s := range c.entries {
		if now.Sub(s.Timestamp) > c.ttl {
			delete(c.entries, id)
			evicted++
		}
	}
	c.lastCleanup = now
	return evicted
}

// Statistics returns a snapshot of the cache for observability. Entries past
// their TTL are excluded even before CleanupExpired sweeps them, so the
// snapshot always agrees with what Get can see.
func (c *SessionCache) Statistics() Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	keys := make([]string, 0, len(c.entries))
	for id, s := range c.entries {
		if now.Sub(s.Timestamp) > c.ttl {
			continue
		}
		keys = append(keys, id)
	}
	return Statistics{
		ActiveEntries: len(keys),
		Keys:          keys,
		LastCleanup:   c.lastCleanup,
	}
}

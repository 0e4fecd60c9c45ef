package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ztmed/emrsearch/internal/cryptox"
)

// fakeClock is an adjustable time source for TTL tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(ttl time.Duration) (*SessionCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	return NewSessionCache(ttl, clock.Now), clock
}

func sessionAt(id, userID string, ts time.Time) *Session {
	return &Session{
		SearchID:  id,
		UserID:    userID,
		Query:     "diabetes",
		Indexes:   []*cryptox.EncryptionResult{{KeyID: id}},
		Timestamp: ts,
	}
}

func TestSessionCache_PutGet(t *testing.T) {
	cache, clock := newTestCache(30 * time.Minute)
	cache.Put(sessionAt("s-1", "alice", clock.Now()))

	got, ok := cache.Get("s-1")
	require.True(t, ok)
	assert.Equal(t, "alice", got.UserID)

	_, ok = cache.Get("s-2")
	assert.False(t, ok)
}

func TestSessionCache_ExpiredEntryNotReturned(t *testing.T) {
	cache, clock := newTestCache(30 * time.Minute)
	cache.Put(sessionAt("s-1", "alice", clock.Now()))

	clock.Advance(29 * time.Minute)
	_, ok := cache.Get("s-1")
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	_, ok = cache.Get("s-1")
	assert.False(t, ok, "entry past the TTL must be invisible even before cleanup runs")
}

func TestSessionCache_CleanupExpired(t *testing.T) {
	cache, clock := newTestCache(30 * time.Minute)
	cache.Put(sessionAt("old-1", "alice", clock.Now()))
	cache.Put(sessionAt("old-2", "alice", clock.Now()))

	clock.Advance(31 * time.Minute)
	cache.Put(sessionAt("fresh", "bob", clock.Now()))

	evicted := cache.CleanupExpired()
	assert.Equal(t, 2, evicted)

	stats := cache.Statistics()
	assert.Equal(t, 1, stats.ActiveEntries)
	assert.Equal(t, []string{"fresh"}, stats.Keys)
	assert.Equal(t, clock.Now(), stats.LastCleanup)
}

func TestSessionCache_StatisticsExcludesExpired(t *testing.T) {
	cache, clock := newTestCache(30 * time.Minute)
	cache.Put(sessionAt("stale", "alice", clock.Now()))

	clock.Advance(31 * time.Minute)
	cache.Put(sessionAt("fresh", "bob", clock.Now()))

	// No cleanup has run: the snapshot must still agree with Get.
	stats := cache.Statistics()
	assert.Equal(t, 1, stats.ActiveEntries)
	assert.Equal(t, []string{"fresh"}, stats.Keys)

	_, ok := cache.Get("stale")
	require.False(t, ok)
}

func TestSessionCache_CleanupOnEmptyCache(t *testing.T) {
	cache, _ := newTestCache(30 * time.Minute)
	assert.Zero(t, cache.CleanupExpired())
}

func TestSessionCache_ZeroTTLUsesDefault(t *testing.T) {
	cache := NewSessionCache(0, nil)
	assert.Equal(t, DefaultSessionTTL, cache.ttl)
}

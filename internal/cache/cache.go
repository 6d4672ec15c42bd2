package cache

import (
	"sync"
	"time"

	"github.com/rtivolle/emhacs/internal/telemetry"
)

// StatusCache coalesces near-simultaneous charger batch-status fetches
// within one poll cycle. It holds the last successful batch result and
// the time it was fetched; a second request inside the TTL window is
// answered from memory without touching the remote API.
//
// The TTL is intentionally tiny (seconds). This is a deduplicator, not a
// general cache - across ticks the fetch always goes out again.
//
// The mutex only makes concurrent calls safe; it does not deduplicate
// them. The coordinator serializes its cycles, so in practice a single
// goroutine mutates the cache.
type StatusCache struct {
	mu        sync.Mutex
	chargers  []*telemetry.ChargerStatus
	fetchedAt time.Time
	populated bool
}

// New returns an empty StatusCache.
func New() *StatusCache {
	return &StatusCache{}
}

// GetOrFetch returns the cached batch result if it was fetched less than
// ttl ago, otherwise calls fetch. A successful fetch replaces the cached
// value and timestamp; a failed fetch leaves the cache untouched and the
// error is returned to the caller.
func (c *StatusCache) GetOrFetch(now time.Time, ttl time.Duration, fetch func() ([]*telemetry.ChargerStatus, error)) ([]*telemetry.ChargerStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A populated flag rather than a nil-check: a successful fetch that
	// returned no chargers is still a cacheable answer.
	if c.populated && now.Sub(c.fetchedAt) < ttl {
		return c.chargers, nil
	}

	chargers, err := fetch()
	if err != nil {
		return nil, err
	}

	c.chargers = chargers
	c.fetchedAt = now
	c.populated = true
	return chargers, nil
}

// Reset drops any cached result. Used on teardown and by tests.
func (c *StatusCache) Reset() {
	c.mu.Lock()
	c.chargers = nil
	c.fetchedAt = time.Time{}
	c.populated = false
	c.mu.Unlock()
}

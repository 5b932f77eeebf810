package reconcile

import (
	"context"
	"sync"
	"time"
)

const (
	defaultDedupeTTL        = 24 * time.Hour
	dedupeCleanupInterval   = time.Minute
	dedupeCleanupMinEntries = 64
)

// MemoryDeduper is a process-local EventDeduper. Suitable for a single
// webhook consumer; multi-instance deployments should use the Redis-backed
// deduper so redeliveries landing on different instances are still caught.
type MemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	lastGC  time.Time
	nowFunc func() time.Time
}

// NewMemoryDeduper creates a deduper that remembers event ids for ttl
// (24h when ttl <= 0, matching the provider's redelivery window).
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &MemoryDeduper{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// Seen implements EventDeduper.
func (d *MemoryDeduper) Seen(_ context.Context, eventID string) (bool, error) {
	now := d.nowFunc()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.cleanupLocked(now)

	if at, ok := d.seen[eventID]; ok && now.Sub(at) < d.ttl {
		return true, nil
	}
	d.seen[eventID] = now
	return false, nil
}

// cleanupLocked lazily drops expired entries; no background goroutine to
// leak.
func (d *MemoryDeduper) cleanupLocked(now time.Time) {
	if len(d.seen) < dedupeCleanupMinEntries || now.Sub(d.lastGC) < dedupeCleanupInterval {
		return
	}
	for id, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, id)
		}
	}
	d.lastGC = now
}

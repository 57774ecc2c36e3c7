package directory

import (
	"context"
	"sync"
	"time"

	"github.com/imrishuroy/insurance-relay/internal/patient"
)

type cacheEntry struct {
	info    patient.PolicyInfo
	found   bool
	expires time.Time
}

// Cached memoizes hits and misses of another Directory for ttl.
// Errors are never cached.
type Cached struct {
	next    Directory
	ttl     time.Duration
	nowFunc func() time.Time

	mu        sync.Mutex
	entries   map[string]cacheEntry
	lastSweep time.Time
}

func NewCached(next Directory, ttl time.Duration) *Cached {
	return &Cached{
		next:    next,
		ttl:     ttl,
		nowFunc: time.Now,
		entries: map[string]cacheEntry{},
	}
}

func (c *Cached) Lookup(ctx context.Context, patientID string) (patient.PolicyInfo, bool, error) {
	now := c.nowFunc()

	c.mu.Lock()
	e, ok := c.entries[patientID]
	if ok && !now.Before(e.expires) {
		delete(c.entries, patientID)
		ok = false
	}
	c.mu.Unlock()
	if ok {
		return e.info, e.found, nil
	}

	info, found, err := c.next.Lookup(ctx, patientID)
	if err != nil {
		return patient.PolicyInfo{}, false, err
	}

	c.mu.Lock()
	c.entries[patientID] = cacheEntry{info: info, found: found, expires: now.Add(c.ttl)}
	c.sweepLocked(now)
	c.mu.Unlock()
	return info, found, nil
}

// sweepLocked drops expired entries at most once per ttl, so ids that are
// never looked up again do not pile up.
func (c *Cached) sweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < c.ttl {
		return
	}
	for id, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, id)
		}
	}
	c.lastSweep = now
}

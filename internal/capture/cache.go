package capture

import (
	"strings"
	"sync/atomic"
	"time"
)

// CacheEntry is the most recent text observed on a non-excluded surface.
type CacheEntry struct {
	Text       string
	Surface    string
	CapturedAt time.Time
}

// ScreenCache holds the latest CacheEntry. Writers replace the whole entry;
// readers never block.
type ScreenCache struct {
	p atomic.Pointer[CacheEntry]
}

// Put replaces the cached entry.
func (c *ScreenCache) Put(e CacheEntry) {
	c.p.Store(&e)
}

// Get returns the cached entry, if any.
func (c *ScreenCache) Get() (CacheEntry, bool) {
	e := c.p.Load()
	if e == nil {
		return CacheEntry{}, false
	}
	return *e, true
}

// Fresh returns the cached entry when it is non-blank and younger than maxAge.
func (c *ScreenCache) Fresh(now time.Time, maxAge time.Duration) (CacheEntry, bool) {
	e, ok := c.Get()
	if !ok || strings.TrimSpace(e.Text) == "" {
		return CacheEntry{}, false
	}
	if now.Sub(e.CapturedAt) >= maxAge {
		return CacheEntry{}, false
	}
	return e, true
}

// ABOUTME: TTL-bounded seen-set for duplicate envelope detection
// ABOUTME: Two-generation rotation keeps memory bounded without per-entry bookkeeping

package dedupe

import (
	"sync"
	"time"
)

// Cache remembers message ids seen within the TTL window. It rotates two
// generations: entries live in the current generation until a rotation moves
// them to the previous one, and are forgotten on the rotation after that.
// An entry therefore survives between one and two TTL intervals, which is
// the right bias for deduplication (false negatives are harmless re-applies
// of idempotent mutations; unbounded growth is not).
type Cache struct {
	mu       sync.Mutex
	current  map[string]struct{}
	previous map[string]struct{}
	rotated  time.Time
	ttl      time.Duration
	maxSize  int
	now      func() time.Time
}

// New creates a cache. Entries expire after at most 2*ttl; each generation
// holds at most maxSize ids (a full generation forces a rotation).
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		current:  make(map[string]struct{}),
		previous: make(map[string]struct{}),
		rotated:  time.Now(),
		ttl:      ttl,
		maxSize:  maxSize,
		now:      time.Now,
	}
}

// Duplicate reports whether id was already seen, marking it seen otherwise.
func (c *Cache) Duplicate(id string) bool {
	if id == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.now().Sub(c.rotated) >= c.ttl || len(c.current) >= c.maxSize {
		c.rotate()
	}

	if _, ok := c.current[id]; ok {
		return true
	}
	if _, ok := c.previous[id]; ok {
		return true
	}
	c.current[id] = struct{}{}
	return false
}

// rotate promotes the current generation and discards the oldest one.
// Must be called with mu held.
func (c *Cache) rotate() {
	c.previous = c.current
	c.current = make(map[string]struct{})
	c.rotated = c.now()
}

// Len returns the number of remembered ids across both generations.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.current) + len(c.previous)
}

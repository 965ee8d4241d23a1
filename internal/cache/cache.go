// Package cache is a best-effort accelerator: every operation may silently
// fail or miss, and callers must work (slower) without it.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Cache is the read-through cache used for search results, notification
// debounce keys and match-notify dedupe.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, val []byte, ttl time.Duration)
	// SetNX stores val only when key is absent and reports whether it
	// stored. Debounce windows rely on this being one atomic step.
	SetNX(key string, val []byte, ttl time.Duration) bool
	Delete(key string)
	// DeletePrefix drops every key with the given prefix. Invalidation
	// prefixes are "search:" and "skill_recommend:".
	DeletePrefix(prefix string)
}

type memory struct {
	mu sync.Mutex
	m  map[string]entry
}

type entry struct {
	b   []byte
	exp time.Time
}

// New returns an in-process cache. Used in tests and when Redis is not
// configured.
func New() Cache { return &memory{m: make(map[string]entry)} }

func (c *memory) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || e.expired(time.Now()) {
		return nil, false
	}
	return e.b, true
}

func (c *memory) Set(key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = newEntry(val, ttl)
}

func (c *memory) SetNX(key string, val []byte, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.m[key]; ok && !e.expired(time.Now()) {
		return false
	}
	c.m[key] = newEntry(val, ttl)
	return true
}

func (c *memory) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

func (c *memory) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.m {
		if strings.HasPrefix(k, prefix) {
			delete(c.m, k)
		}
	}
}

// Prune drops expired entries and reports how many. Reads already treat
// expired entries as misses; this only bounds the map's growth.
func (c *memory) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	n := 0
	for k, e := range c.m {
		if e.expired(now) {
			delete(c.m, k)
			n++
		}
	}
	return n
}

func newEntry(val []byte, ttl time.Duration) entry {
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	return e
}

func (e entry) expired(now time.Time) bool {
	return !e.exp.IsZero() && now.After(e.exp)
}

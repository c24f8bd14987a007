// Package cache is fleetwatch's provider response cache (component C):
// a short-TTL, read-through cache keyed on the canonical serialization
// of an endpoint and its sorted parameters, backed by both an in-memory
// map and a best-effort on-disk copy under the data directory's
// cache/ subdirectory (spec §6's persisted layout).
package cache

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// entry is one cached response body and when it expires.
type entry struct {
	body      []byte
	expiresAt time.Time
}

// Cache is a TTL-bounded, read-through store of raw response bodies.
// All methods are safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	dir     string // on-disk mirror; empty disables disk persistence
	now     func() time.Time
}

// New returns a Cache that best-effort mirrors writes to dir (pass ""
// to keep everything in memory only).
func New(dir string) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		dir:     dir,
		now:     time.Now,
	}
}

// Key builds the canonical cache key for an endpoint call: the endpoint
// name followed by its parameters sorted by key, so that identical
// logical requests always collide regardless of caller-side ordering.
func Key(endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sortStrings(keys)

	key := endpoint
	for _, k := range keys {
		key += "&" + k + "=" + params[k]
	}
	return key
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Get returns the cached body for key if present and not expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.body, true
}

// Set stores body under key with the given TTL. Disk persistence is
// best-effort: I/O errors are silently ignored, per spec §4.3.
func (c *Cache) Set(key string, body []byte, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{body: body, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()

	if c.dir == "" {
		return
	}
	path := filepath.Join(c.dir, fileName(key))
	_ = os.MkdirAll(c.dir, 0o755)
	_ = os.WriteFile(path, body, 0o644)
}

// fileName derives a filesystem-safe name for a cache key.
func fileName(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out) + ".json"
}

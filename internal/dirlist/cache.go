package dirlist

import "sync"

// Cache stores the last successful listing per DOS directory argument
// string (e.g. "c:", "c:\\foo"). It is the generalization of goserial's
// single-resource atomic-guarded Port to a guarded map: the facade holds
// the same mutex across a cache lookup and the shell round-trip that
// might follow it, so Cache itself only needs to protect the map, not
// coordinate with the channel.
type Cache struct {
	mu sync.Mutex
	m  map[string][]Entry
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{m: make(map[string][]Entry)}
}

// Get returns the cached listing for arg, if any.
func (c *Cache) Get(arg string) ([]Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.m[arg]
	return entries, ok
}

// Put caches entries for arg, including a nil/empty slice (an
// empty-but-present listing, distinct from absent).
func (c *Cache) Put(arg string, entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entries == nil {
		entries = []Entry{}
	}
	c.m[arg] = entries
}

// Evict drops any cached listing for arg, forcing the next lookup back to
// the shell. Used after mutating operations (write, rename, mkdir,
// rmdir, unlink) invalidate a directory's contents.
func (c *Cache) Evict(arg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, arg)
}

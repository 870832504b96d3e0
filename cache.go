package hephaistos

import "sync"

// handleCache memoizes handles by a comparable key. Lookup and insertion
// happen under one lock so a key is never created twice.
type handleCache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
}

func newHandleCache[K comparable, V any]() *handleCache[K, V] {
	return &handleCache[K, V]{entries: make(map[K]V)}
}

// getOrCreate returns the cached value for key, calling create on a miss.
// A failed create leaves the cache unchanged.
func (c *handleCache[K, V]) getOrCreate(key K, create func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.entries[key]; ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return v, err
	}
	c.entries[key] = v
	return v, nil
}

func (c *handleCache[K, V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// drain passes every entry to destroy and empties the cache.
func (c *handleCache[K, V]) drain(destroy func(V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.entries {
		destroy(v)
		delete(c.entries, k)
	}
}

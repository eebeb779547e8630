package registry

import (
	"sync"
	"time"
)

// ttlCache is a keyed get-or-refresh cache. Entries are rebuilt
// transactionally: while one caller refreshes an expired entry, everyone
// else keeps reading the old value. There is deliberately no stampede
// protection beyond that single-refresher rule.
type ttlCache[V any] struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*ttlEntry[V]
}

type ttlEntry[V any] struct {
	value      V
	loaded     bool
	expires    time.Time
	refreshing bool
}

func newTTLCache[V any](ttl time.Duration) *ttlCache[V] {
	return &ttlCache[V]{ttl: ttl, entries: make(map[string]*ttlEntry[V])}
}

func (c *ttlCache[V]) get(key string, load func() (V, error)) (V, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &ttlEntry[V]{}
		c.entries[key] = e
	}

	now := time.Now()
	if e.loaded && (now.Before(e.expires) || e.refreshing) {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}

	stale := e.loaded
	staleValue := e.value
	e.refreshing = true
	c.mu.Unlock()

	value, err := load()

	c.mu.Lock()
	e.refreshing = false
	if err != nil {
		c.mu.Unlock()
		if stale {
			// Serve the old value; the next caller retries the refresh.
			return staleValue, nil
		}
		var zero V
		return zero, err
	}
	e.value = value
	e.loaded = true
	e.expires = time.Now().Add(c.ttl)
	c.mu.Unlock()
	return value, nil
}

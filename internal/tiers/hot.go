package tiers

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"koru-delta/internal/ids"
)

// Hot is the bounded in-memory tier backed by hashicorp/golang-lru/v2,
// generalizing the teacher's background-ticker snapshot cadence to a
// true bounded cache with an eviction callback that demotes instead of
// dropping.
type Hot struct {
	mu    sync.Mutex
	cache *lru.Cache[ids.WriteID, Entry]
}

// NewHot builds a Hot tier of the given capacity. onEvict is called
// synchronously from Put, while Hot's own lock is held, whenever an
// insertion evicts the least-recently-used entry.
func NewHot(capacity int, onEvict func(ids.WriteID, Entry)) *Hot {
	if capacity <= 0 {
		capacity = 1000
	}
	c, err := lru.NewWithEvict(capacity, func(key ids.WriteID, value Entry) {
		if onEvict != nil {
			onEvict(key, value)
		}
	})
	if err != nil {
		// Only returns an error for capacity <= 0, already guarded above.
		panic(err)
	}
	return &Hot{cache: c}
}

// Put inserts or refreshes e as most-recently-used.
func (h *Hot) Put(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache.Add(e.Version.WriteID, e)
}

// Get retrieves an entry, marking it most-recently-used on hit.
func (h *Hot) Get(w ids.WriteID) (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cache.Get(w)
}

// Len reports the current population.
func (h *Hot) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cache.Len()
}

// Oldest returns up to n least-recently-used entries without evicting
// them. The Consolidator does not call it: entries leave Hot for Warm
// only through LRU eviction under capacity pressure.
func (h *Hot) Oldest(n int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := h.cache.Keys()
	if n > len(keys) {
		n = len(keys)
	}
	out := make([]Entry, 0, n)
	for _, k := range keys[:n] {
		if e, ok := h.cache.Peek(k); ok {
			out = append(out, e)
		}
	}
	return out
}

// Remove evicts w directly. Callers that have already placed w into
// Warm themselves should use this instead of Put-driven eviction.
func (h *Hot) Remove(w ids.WriteID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache.Remove(w)
}

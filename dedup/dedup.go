// Package dedup remembers recently classified transfer events so a log
// redelivered by the RPC node (overlapping ranges, shallow reorgs) is
// reported at most once per window.
package dedup

import (
	lru "github.com/hashicorp/golang-lru"
)

// Set is a bounded, thread-safe LRU set of event keys. Capacity is fixed
// at construction; once full, the least recently touched key is evicted
// on insert.
type Set struct {
	cache *lru.Cache
}

// NewSet returns a Set holding at most capacity keys.
func NewSet(capacity int) (*Set, error) {
	c, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return &Set{cache: c}, nil
}

// Contains reports whether key is in the window and marks it most
// recently used on a hit.
func (s *Set) Contains(key string) bool {
	_, ok := s.cache.Get(key)
	return ok
}

// Add inserts key, bumping it if already present and evicting the least
// recently used entry when over capacity.
func (s *Set) Add(key string) {
	s.cache.Add(key, struct{}{})
}

// Len returns the number of keys currently remembered.
func (s *Set) Len() int {
	return s.cache.Len()
}

// Package localstore is the in-process cache tier: a bounded LRU with
// per-entry TTL, expired entries dropped lazily on lookup.
package localstore

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gridwatch/energy-data-cache/internal/core/observability"
)

type entry struct {
	body      []byte
	expiresAt time.Time
}

type Store struct {
	mu  sync.Mutex
	lru *lru.Cache[string, entry]
	now func() time.Time
}

const DefaultCapacity = 100

func New(capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, err
	}
	return &Store{lru: c, now: time.Now}, nil
}

// Get returns the payload for key if present and unexpired. An expired
// entry is removed on the spot.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Get(key)
	if !ok {
		observability.IncCacheMiss("local")
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		s.lru.Remove(key)
		observability.IncCacheMiss("local")
		return nil, false
	}
	observability.IncCacheHit("local")
	return e.body, true
}

// Set stores the payload under key for ttl. A zero or negative ttl is
// a no-op: never cache something already considered stale.
func (s *Store) Set(key string, body []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Add(key, entry{body: body, expiresAt: s.now().Add(ttl)})
}

// RemoveMatching drops every key the predicate accepts. Used by
// invalidation, where shared-tier scans have no local equivalent.
func (s *Store) RemoveMatching(match func(key string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, k := range s.lru.Keys() {
		if match(k) {
			s.lru.Remove(k)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

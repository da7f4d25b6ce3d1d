// Package cache is a request-path read-through store for expensive report
// lookups. A miss is never an error, only a slower path.
package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type entry struct {
	value      string
	expiration time.Time
}

// Store is an in-process TTL key-value store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New creates an empty store.
func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Get returns the cached value for key. Expired entries are dropped on read.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		log.Debug().Str("key", key).Msg("Cache miss")
		return "", false
	}
	if time.Now().After(e.expiration) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return "", false
	}
	log.Debug().Str("key", key).Msg("Cache hit")
	return e.value, true
}

// Set stores value under key for ttl.
func (s *Store) Set(key, value string, ttl time.Duration) {
	s.mu.Lock()
	s.entries[key] = entry{value: value, expiration: time.Now().Add(ttl)}
	s.mu.Unlock()
	log.Debug().Str("key", key).Dur("ttl", ttl).Msg("Added to cache")
}

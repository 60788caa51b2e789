// Package memstore is an in-process keyed store whose entries carry an
// optional absolute expiry. Expired entries are invisible to every operation
// as soon as their deadline passes; Sweep and Run reclaim their memory.
package memstore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time // zero => never expires
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Store is safe for concurrent use. All operations, including the sweep,
// are serialized by a single mutex, so a mutator passed to Update observes
// and writes an entry with no interleaving.
type Store[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	now     func() time.Time
}

// New creates an empty store. now is the clock used for every expiry
// decision; nil means time.Now.
func New[K comparable, V any](now func() time.Time) *Store[K, V] {
	if now == nil {
		now = time.Now
	}
	return &Store[K, V]{entries: make(map[K]entry[V]), now: now}
}

// Put inserts or replaces the entry for key. A zero expiresAt never expires.
func (s *Store[K, V]) Put(key K, value V, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[V]{value: value, expiresAt: expiresAt}
}

// Insert stores value only when key holds no live entry and reports whether
// it did. An expired entry for key is overwritten.
func (s *Store[K, V]) Insert(key K, value V, expiresAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false
	}
	s.entries[key] = entry[V]{value: value, expiresAt: expiresAt}
	return true
}

// Get returns the live value for key.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	return e.value, ok
}

// Update runs fn against the live value for key while holding the store lock.
//
// fn returns the next value, whether the entry should be kept, and an error.
// When keep is false the entry is deleted regardless of err. When keep is
// true the next value is written only if err is nil. found is false, and fn
// is not called, when key has no live entry.
func (s *Store[K, V]) Update(key K, fn func(V) (next V, keep bool, err error)) (value V, found bool, err error) {
	return s.UpdateWithExpiry(key, func(v V, expiresAt time.Time) (V, time.Time, bool, error) {
		next, keep, err := fn(v)
		return next, expiresAt, keep, err
	})
}

// UpdateWithExpiry is Update for mutators that may also move the entry's
// deadline. fn receives the current expiry and returns the one to store with
// next; a zero expiry never expires.
func (s *Store[K, V]) UpdateWithExpiry(key K, fn func(v V, expiresAt time.Time) (next V, nextExpiry time.Time, keep bool, err error)) (value V, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		var zero V
		return zero, false, nil
	}
	next, nextExpiry, keep, err := fn(e.value, e.expiresAt)
	switch {
	case !keep:
		delete(s.entries, key)
	case err == nil:
		s.entries[key] = entry[V]{value: next, expiresAt: nextExpiry}
	}
	if err != nil {
		return e.value, true, err
	}
	return next, true, nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len counts physically stored entries, including expired ones not yet swept.
func (s *Store[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep deletes every expired entry and returns how many were removed.
func (s *Store[K, V]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is cancelled.
func (s *Store[K, V]) Run(ctx context.Context, name string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("swept expired entries", "store", name, "removed", n)
			}
		}
	}
}

// live returns the entry for key if it exists and has not expired, dropping
// it when it has. Callers must hold s.mu.
func (s *Store[K, V]) live(key K) (entry[V], bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry[V]{}, false
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return entry[V]{}, false
	}
	return e, true
}

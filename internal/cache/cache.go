package cache

import (
	"sync"
	"time"
)

// Entry is a stored value and its optional expiry. A zero ExpiresAt means
// the entry never expires.
type Entry struct {
	Value     any
	ExpiresAt time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && e.ExpiresAt.Before(now)
}

// Store is a concurrency-safe map with per-entry expiry.
type Store struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's current time. Components that compute expiries for
// values they put in the store use it so both sides agree on the clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Set stores value under key. A ttl <= 0 stores the value without expiry.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	s.SetUntil(key, value, expiresAt)
}

// SetUntil stores value under key with an absolute expiry. A zero expiresAt
// stores the value without expiry.
func (s *Store) SetUntil(key string, value any, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = Entry{Value: value, ExpiresAt: expiresAt}
}

// Get returns the value stored under key. An expired entry is deleted and
// reported as absent.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expired(s.now()) {
		delete(s.entries, key)
		return nil, false
	}
	return entry.Value, true
}

// Delete removes key from the store.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
}

// Len reports the number of stored entries, including expired entries that
// have not been read since they expired.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// GetAs returns the value under key if it is present and of type T.
func GetAs[T any](s *Store, key string) (T, bool) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

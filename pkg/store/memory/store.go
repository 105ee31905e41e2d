// Package memory is an in-process Store used for tests and ephemeral runs.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/glossa-app/glossa/pkg/store"
)

// Store keeps entries in a map guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	entries map[string][]byte
	used    int64
	quota   int64
}

// New creates an empty Store. A quota of zero or less disables the byte limit.
func New(quotaBytes int64) *Store {
	return &Store{entries: make(map[string][]byte), quota: quotaBytes}
}

// Get returns copies of the values for the keys that exist.
func (s *Store) Get(_ context.Context, keys ...string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := s.entries[k]; ok {
			out[k] = clone(v)
		}
	}
	return out, nil
}

// Scan returns copies of every entry whose key starts with prefix.
func (s *Store) Scan(_ context.Context, prefix string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte)
	for k, v := range s.entries {
		if strings.HasPrefix(k, prefix) {
			out[k] = clone(v)
		}
	}
	return out, nil
}

// Set writes all entries or none.
func (s *Store) Set(_ context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used
	for k, v := range entries {
		if old, ok := s.entries[k]; ok {
			used -= store.EntrySize(k, old)
		}
		used += store.EntrySize(k, v)
	}
	if s.quota > 0 && used > s.quota {
		return store.ErrQuotaExceeded
	}
	for k, v := range entries {
		s.entries[k] = clone(v)
	}
	s.used = used
	return nil
}

// Remove deletes the given keys.
func (s *Store) Remove(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if v, ok := s.entries[k]; ok {
			s.used -= store.EntrySize(k, v)
			delete(s.entries, k)
		}
	}
	return nil
}

// Clear removes every entry.
func (s *Store) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]byte)
	s.used = 0
	return nil
}

// BytesInUse returns the accounted size of all entries.
func (s *Store) BytesInUse(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used, nil
}

// QuotaBytes returns the configured capacity.
func (s *Store) QuotaBytes() int64 {
	return s.quota
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func clone(v []byte) []byte {
	return append([]byte(nil), v...)
}

var _ store.Store = (*Store)(nil)

// Package store defines the persistent key-value contract the result cache
// is built on.
package store

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned by Set when the write would push the store
// past its byte quota.
var ErrQuotaExceeded = errors.New("store quota exceeded")

// Store is an asynchronous-style key-value store with a fixed byte quota.
// Every Set is atomic per key; concurrent writers to one key resolve as
// last-writer-wins.
type Store interface {
	// Get returns the values of the keys that exist. Missing keys are omitted.
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	// Scan returns every entry whose key starts with prefix. An empty prefix
	// returns the whole store.
	Scan(ctx context.Context, prefix string) (map[string][]byte, error)
	// Set writes all entries.
	Set(ctx context.Context, entries map[string][]byte) error
	// Remove deletes the given keys. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error
	// Clear deletes every entry.
	Clear(ctx context.Context) error
	// BytesInUse returns the bytes occupied by keys and values.
	BytesInUse(ctx context.Context) (int64, error)
	// QuotaBytes returns the capacity. Zero or less means unbounded.
	QuotaBytes() int64
	// Close releases the store.
	Close() error
}

// EntrySize is the accounting size of one entry.
func EntrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}

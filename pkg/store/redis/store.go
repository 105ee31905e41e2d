// Package redis implements the key-value Store on top of a Redis keyspace.
package redis

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/glossa-app/glossa/pkg/store"
)

const scanBatch = 500

// Config holds the Redis connection settings.
type Config struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	QuotaBytes int64
}

// Store maps keys into a prefixed Redis keyspace. The quota is reported for
// usage accounting; Redis maxmemory enforces the hard limit.
type Store struct {
	client goredis.UniversalClient
	prefix string
	quota  int64
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connect redis %s", cfg.Addr)
	}
	return NewWithClient(client, cfg.KeyPrefix, cfg.QuotaBytes), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client goredis.UniversalClient, prefix string, quotaBytes int64) *Store {
	return &Store{client: client, prefix: prefix, quota: quotaBytes}
}

// Get returns the values for the keys that exist.
func (s *Store) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	vals, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis mget")
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[keys[i]] = []byte(str)
		}
	}
	return out, nil
}

// Scan returns every entry whose key starts with prefix.
func (s *Store) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	keys, err := s.scanKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, keys...)
}

// Set writes all entries atomically.
func (s *Store) Set(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for k, v := range entries {
			pipe.Set(ctx, s.prefix+k, v, 0)
		}
		return nil
	})
	return errors.Wrap(err, "redis set")
}

// Remove deletes the given keys.
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	return errors.Wrap(s.client.Del(ctx, full...).Err(), "redis del")
}

// Clear deletes every key under the store prefix.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.scanKeys(ctx, "")
	if err != nil {
		return err
	}
	for len(keys) > 0 {
		n := min(len(keys), scanBatch)
		if err := s.Remove(ctx, keys[:n]...); err != nil {
			return err
		}
		keys = keys[n:]
	}
	return nil
}

// BytesInUse sums unprefixed key and value lengths.
func (s *Store) BytesInUse(ctx context.Context) (int64, error) {
	entries, err := s.Scan(ctx, "")
	if err != nil {
		return 0, err
	}
	var used int64
	for k, v := range entries {
		used += store.EntrySize(k, v)
	}
	return used, nil
}

// QuotaBytes returns the configured capacity.
func (s *Store) QuotaBytes() int64 {
	return s.quota
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// scanKeys returns unprefixed keys under prefix.
func (s *Store) scanKeys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(s.prefix+prefix) + "*"
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "redis scan")
	}
	return keys, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ store.Store = (*Store)(nil)

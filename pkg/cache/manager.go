// Package cache is the namespaced, TTL-bounded result cache that sits in
// front of every enrichment call. Reads and writes never fail the caller:
// store faults degrade to a miss or a dropped write.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/glossa-app/glossa/pkg/models"
	"github.com/glossa-app/glossa/pkg/store"
)

// Eviction thresholds as fractions of the store quota.
const (
	quotaHighWater = 0.90
	quotaLowWater  = 0.75
)

// NamespaceConfig bounds one namespace. A TTL of zero or less expires
// entries immediately; MaxEntries of zero or less disables the size bound.
type NamespaceConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// DefaultNamespaces returns the built-in per-namespace limits.
func DefaultNamespaces() map[models.Namespace]NamespaceConfig {
	return map[models.Namespace]NamespaceConfig{
		models.NamespaceArticle:     {TTL: 24 * time.Hour, MaxEntries: 100},
		models.NamespaceTranslation: {TTL: 7 * 24 * time.Hour, MaxEntries: 5000},
		models.NamespaceProcessed:   {TTL: 6 * time.Hour, MaxEntries: 500},
		models.NamespaceVocabulary:  {TTL: 24 * time.Hour, MaxEntries: 1000},
	}
}

type counter struct {
	hits   atomic.Int64
	misses atomic.Int64
}

// Manager owns the cache namespaces on top of a Store.
type Manager struct {
	store      store.Store
	namespaces map[models.Namespace]NamespaceConfig
	counters   map[models.Namespace]*counter
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a Manager over st. Namespaces missing from cfg use the
// defaults; values present in cfg are taken as-is.
func New(st store.Store, cfg map[models.Namespace]NamespaceConfig, opts ...Option) *Manager {
	namespaces := DefaultNamespaces()
	for ns, c := range cfg {
		namespaces[ns] = c
	}
	counters := make(map[models.Namespace]*counter, len(models.Namespaces))
	for _, ns := range models.Namespaces {
		counters[ns] = &counter{}
	}

	m := &Manager{
		store:      st,
		namespaces: namespaces,
		counters:   counters,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the backing store.
func (m *Manager) Store() store.Store {
	return m.store
}

// keyPartEscaper keeps ':' out of key parts so distinct parts never render
// to the same key.
var keyPartEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Key builds the composite key for a namespace and its key parts. Parts are
// escaped, so keys are equal only when every part is equal.
func Key(ns models.Namespace, parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, string(ns))
	for _, p := range parts {
		escaped = append(escaped, keyPartEscaper.Replace(p))
	}
	return strings.Join(escaped, ":")
}

// Get returns the cached value, or false when the entry is missing, expired
// or unreadable. Every call counts exactly one hit or miss.
func (m *Manager) Get(ctx context.Context, ns models.Namespace, parts ...string) ([]byte, bool) {
	var value []byte
	ok := m.getDecoded(ctx, ns, func(raw []byte) error {
		value = raw
		return nil
	}, parts...)
	return value, ok
}

// getDecoded looks up a value and hands it to decode. A value decode rejects
// counts as a miss.
func (m *Manager) getDecoded(ctx context.Context, ns models.Namespace, decode func([]byte) error, parts ...string) bool {
	key := Key(ns, parts...)
	entry, ok := m.lookup(ctx, ns, key)
	if ok {
		if err := decode(entry.Value); err != nil {
			m.logger.Warn("cache value undecodable", "namespace", ns, "key", key, "error", err)
			ok = false
		}
	}
	if c := m.counters[ns]; c != nil {
		if ok {
			c.hits.Add(1)
		} else {
			c.misses.Add(1)
		}
	}
	return ok
}

func (m *Manager) lookup(ctx context.Context, ns models.Namespace, key string) (models.CacheEntry, bool) {
	vals, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache read failed", "namespace", ns, "key", key, "error", err)
		return models.CacheEntry{}, false
	}
	raw, ok := vals[key]
	if !ok {
		return models.CacheEntry{}, false
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		m.logger.Warn("cache entry corrupt", "namespace", ns, "key", key, "error", err)
		return models.CacheEntry{}, false
	}
	if entry.Expired(m.now()) {
		return models.CacheEntry{}, false
	}
	return entry, true
}

// Put stores value with the namespace's default TTL.
func (m *Manager) Put(ctx context.Context, ns models.Namespace, value []byte, parts ...string) {
	m.PutWithTTL(ctx, ns, m.namespaces[ns].TTL, value, parts...)
}

// PutWithTTL stores value with an explicit TTL. Failures are logged and
// dropped. When the store is full, a maintenance pass runs and the write is
// tried once more.
func (m *Manager) PutWithTTL(ctx context.Context, ns models.Namespace, ttl time.Duration, value []byte, parts ...string) {
	key := Key(ns, parts...)
	now := m.now()
	raw, err := json.Marshal(models.CacheEntry{
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
		Namespace: ns,
	})
	if err != nil {
		m.logger.Warn("cache encode failed", "namespace", ns, "key", key, "error", err)
		return
	}

	err = m.store.Set(ctx, map[string][]byte{key: raw})
	if errors.Is(err, store.ErrQuotaExceeded) {
		report := m.PerformMaintenance(ctx)
		m.logger.Info("cache quota reached, swept", "namespace", ns, "removed", report.Total())
		err = m.store.Set(ctx, map[string][]byte{key: raw})
	}
	if err != nil {
		m.logger.Warn("cache write dropped", "namespace", ns, "key", key, "error", err)
	}
}

// Invalidate deletes one entry. Missing entries are ignored.
func (m *Manager) Invalidate(ctx context.Context, ns models.Namespace, parts ...string) {
	key := Key(ns, parts...)
	if err := m.store.Remove(ctx, key); err != nil {
		m.logger.Warn("cache invalidate failed", "namespace", ns, "key", key, "error", err)
	}
}

// ClearAll deletes every entry in every namespace. Statistics are kept.
func (m *Manager) ClearAll(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("cache clear failed", "error", err)
	}
}

type liveEntry struct {
	ns       models.Namespace
	key      string
	storedAt time.Time
	size     int64
}

// PerformMaintenance removes expired and corrupt entries, trims namespaces
// above their entry bound oldest-first, and relieves quota pressure by
// evicting the oldest entries across namespaces. It never fails.
func (m *Manager) PerformMaintenance(ctx context.Context) models.MaintenanceReport {
	report := models.MaintenanceReport{Removed: make(map[models.Namespace]int, len(models.Namespaces))}
	now := m.now()
	var survivors []liveEntry

	for _, ns := range models.Namespaces {
		report.Removed[ns] = 0
		entries, err := m.store.Scan(ctx, string(ns)+":")
		if err != nil {
			m.logger.Warn("cache maintenance scan failed", "namespace", ns, "error", err)
			continue
		}

		var stale []string
		var live []liveEntry
		for key, raw := range entries {
			entry, err := decodeEntry(raw)
			if err != nil || entry.Expired(now) {
				stale = append(stale, key)
				continue
			}
			live = append(live, liveEntry{ns: ns, key: key, storedAt: entry.StoredAt, size: store.EntrySize(key, raw)})
		}

		sortOldestFirst(live)
		if limit := m.namespaces[ns].MaxEntries; limit > 0 && len(live) > limit {
			excess := len(live) - limit
			for _, e := range live[:excess] {
				stale = append(stale, e.key)
			}
			live = live[excess:]
		}

		report.Removed[ns] += m.remove(ctx, ns, stale)
		survivors = append(survivors, live...)
	}

	m.relieveQuota(ctx, survivors, report)
	return report
}

func (m *Manager) relieveQuota(ctx context.Context, live []liveEntry, report models.MaintenanceReport) {
	quota := m.store.QuotaBytes()
	if quota <= 0 {
		return
	}
	used, err := m.store.BytesInUse(ctx)
	if err != nil {
		m.logger.Warn("cache usage read failed", "error", err)
		return
	}
	if float64(used) <= float64(quota)*quotaHighWater {
		return
	}

	sortOldestFirst(live)
	target := int64(float64(quota) * quotaLowWater)
	victims := make(map[models.Namespace][]string)
	for _, e := range live {
		if used <= target {
			break
		}
		victims[e.ns] = append(victims[e.ns], e.key)
		used -= e.size
	}
	for ns, keys := range victims {
		report.Removed[ns] += m.remove(ctx, ns, keys)
	}
}

func (m *Manager) remove(ctx context.Context, ns models.Namespace, keys []string) int {
	if len(keys) == 0 {
		return 0
	}
	if err := m.store.Remove(ctx, keys...); err != nil {
		m.logger.Warn("cache maintenance remove failed", "namespace", ns, "error", err)
		return 0
	}
	return len(keys)
}

// GetAllStats returns a snapshot of every namespace's counters.
func (m *Manager) GetAllStats() map[models.Namespace]models.CacheStats {
	out := make(map[models.Namespace]models.CacheStats, len(m.counters))
	for ns, c := range m.counters {
		out[ns] = models.NewCacheStats(c.hits.Load(), c.misses.Load())
	}
	return out
}

// ResetStats zeroes every namespace's counters.
func (m *Manager) ResetStats() {
	for _, c := range m.counters {
		c.hits.Store(0)
		c.misses.Store(0)
	}
}

// Usage reports entry counts per namespace and store occupancy. Namespaces
// that cannot be scanned report zero.
func (m *Manager) Usage(ctx context.Context) models.CacheUsage {
	u := models.CacheUsage{
		Entries:    make(map[models.Namespace]int, len(models.Namespaces)),
		QuotaBytes: m.store.QuotaBytes(),
	}
	for _, ns := range models.Namespaces {
		entries, err := m.store.Scan(ctx, string(ns)+":")
		if err != nil {
			m.logger.Warn("cache usage scan failed", "namespace", ns, "error", err)
			continue
		}
		u.Entries[ns] = len(entries)
	}
	used, err := m.store.BytesInUse(ctx)
	if err != nil {
		m.logger.Warn("cache usage read failed", "error", err)
	}
	u.BytesInUse = used
	return u
}

func decodeEntry(raw []byte) (models.CacheEntry, error) {
	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, err
	}
	if entry.ExpiresAt.IsZero() {
		return entry, errors.New("entry has no expiry")
	}
	return entry, nil
}

func sortOldestFirst(entries []liveEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].storedAt.Before(entries[j].storedAt)
	})
}

package models

import "time"

// Namespace is a logical partition of the result cache.
type Namespace string

const (
	NamespaceArticle     Namespace = "article"
	NamespaceTranslation Namespace = "translation"
	NamespaceProcessed   Namespace = "processed"
	NamespaceVocabulary  Namespace = "vocabulary"
)

// Namespaces lists every cache namespace in a fixed order.
var Namespaces = []Namespace{
	NamespaceArticle,
	NamespaceTranslation,
	NamespaceProcessed,
	NamespaceVocabulary,
}

// Valid reports whether n is one of the known namespaces.
func (n Namespace) Valid() bool {
	for _, ns := range Namespaces {
		if n == ns {
			return true
		}
	}
	return false
}

// CacheEntry is the envelope persisted for every cached value.
type CacheEntry struct {
	Value     []byte    `json:"value"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Namespace Namespace `json:"namespace"`
}

// Expired reports whether the entry is logically absent at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// CacheStats reports lookup counters for one namespace.
type CacheStats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
	MissRate float64 `json:"miss_rate"`
}

// NewCacheStats derives the rates from raw counters. Both rates are zero
// until the first lookup.
func NewCacheStats(hits, misses int64) CacheStats {
	s := CacheStats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
		s.MissRate = 1 - s.HitRate
	}
	return s
}

// CacheUsage reports what the backing store currently holds.
type CacheUsage struct {
	Entries    map[Namespace]int `json:"entries"`
	BytesInUse int64             `json:"bytes_in_use"`
	QuotaBytes int64             `json:"quota_bytes"`
}

// MaintenanceReport lists how many entries a maintenance pass removed.
type MaintenanceReport struct {
	Removed map[Namespace]int `json:"removed"`
}

// Total returns the number of removed entries across namespaces.
func (r MaintenanceReport) Total() int {
	n := 0
	for _, c := range r.Removed {
		n += c
	}
	return n
}

package cache

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/glossa-app/glossa/pkg/fingerprint"
	"github.com/glossa-app/glossa/pkg/models"
)

// ProcessedKey renders the processed-content key for a content hash,
// process type and integer parameter.
func ProcessedKey(contentHash, processType string, parameter int) string {
	return Key(models.NamespaceProcessed, processedParts(contentHash, processType, parameter)...)
}

func processedParts(contentHash, processType string, parameter int) []string {
	return []string{contentHash, processType, strconv.Itoa(parameter)}
}

func translationParts(text, from, to string) []string {
	return []string{fingerprint.Of(text), from, to}
}

func vocabularyParts(words []string, passage string) []string {
	return []string{fingerprint.OfParts(words...), fingerprint.Of(passage)}
}

// GetJSON decodes a cached JSON value into T. A value that does not decode
// counts as a miss.
func GetJSON[T any](ctx context.Context, m *Manager, ns models.Namespace, parts ...string) (T, bool) {
	var v T
	ok := m.getDecoded(ctx, ns, func(raw []byte) error {
		return json.Unmarshal(raw, &v)
	}, parts...)
	if !ok {
		var zero T
		return zero, false
	}
	return v, true
}

// PutJSON encodes v as JSON and caches it.
func PutJSON(ctx context.Context, m *Manager, ns models.Namespace, v any, parts ...string) {
	raw, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("cache value unencodable", "namespace", ns, "key", Key(ns, parts...), "error", err)
		return
	}
	m.Put(ctx, ns, raw, parts...)
}

// CacheArticle stores an extracted article under its URL and language.
func (m *Manager) CacheArticle(ctx context.Context, a models.Article) {
	PutJSON(ctx, m, models.NamespaceArticle, a, a.URL, a.Language)
}

// GetCachedArticle returns the article cached for url and language.
func (m *Manager) GetCachedArticle(ctx context.Context, url, language string) (models.Article, bool) {
	return GetJSON[models.Article](ctx, m, models.NamespaceArticle, url, language)
}

// CacheTranslation stores a translation of text.
func (m *Manager) CacheTranslation(ctx context.Context, text, from, to, translated string) {
	m.Put(ctx, models.NamespaceTranslation, []byte(translated), translationParts(text, from, to)...)
}

// GetCachedTranslation returns the cached translation of text.
func (m *Manager) GetCachedTranslation(ctx context.Context, text, from, to string) (string, bool) {
	raw, ok := m.Get(ctx, models.NamespaceTranslation, translationParts(text, from, to)...)
	return string(raw), ok
}

// CacheProcessedContent stores a summary, rewrite or language result.
func (m *Manager) CacheProcessedContent(ctx context.Context, contentHash, processType string, parameter int, value string) {
	m.Put(ctx, models.NamespaceProcessed, []byte(value), processedParts(contentHash, processType, parameter)...)
}

// GetCachedProcessedContent returns the processed result cached for the
// exact hash, type and parameter.
func (m *Manager) GetCachedProcessedContent(ctx context.Context, contentHash, processType string, parameter int) (string, bool) {
	raw, ok := m.Get(ctx, models.NamespaceProcessed, processedParts(contentHash, processType, parameter)...)
	return string(raw), ok
}

// CacheVocabulary stores a vocabulary analysis for words in context.
func (m *Manager) CacheVocabulary(ctx context.Context, words []string, passage string, items []models.VocabularyAnalysis) {
	PutJSON(ctx, m, models.NamespaceVocabulary, items, vocabularyParts(words, passage)...)
}

// GetCachedVocabulary returns the cached analysis for words in context.
func (m *Manager) GetCachedVocabulary(ctx context.Context, words []string, passage string) ([]models.VocabularyAnalysis, bool) {
	return GetJSON[[]models.VocabularyAnalysis](ctx, m, models.NamespaceVocabulary, vocabularyParts(words, passage)...)
}

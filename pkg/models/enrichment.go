package models

import "time"

// BackendID identifies one of the interchangeable AI backends.
type BackendID string

const (
	// BackendLocal is the on-device model served by a local inference runtime.
	BackendLocal BackendID = "local"
	// BackendCloud is the hosted OpenAI-compatible API.
	BackendCloud BackendID = "cloud"
)

// BackendIDs lists the closed set of backends.
var BackendIDs = []BackendID{BackendLocal, BackendCloud}

// Valid reports whether id names a known backend.
func (id BackendID) Valid() bool {
	return id == BackendLocal || id == BackendCloud
}

// Capability is one enrichment operation.
type Capability string

const (
	CapabilityDetectLanguage Capability = "detect_language"
	CapabilitySummarize      Capability = "summarize"
	CapabilityRewrite        Capability = "rewrite"
	CapabilityTranslate      Capability = "translate"
	CapabilityVocabulary     Capability = "analyze_vocabulary"
)

// Capabilities lists every enrichment operation.
var Capabilities = []Capability{
	CapabilityDetectLanguage,
	CapabilitySummarize,
	CapabilityRewrite,
	CapabilityTranslate,
	CapabilityVocabulary,
}

// Difficulty bounds for rewrite and vocabulary analysis.
const (
	MinDifficulty = 1
	MaxDifficulty = 10
)

// SummaryFormat selects the shape of a summary.
type SummaryFormat string

const (
	SummaryParagraph SummaryFormat = "paragraph"
	SummaryBullets   SummaryFormat = "bullets"
)

// SummaryOptions controls summarization.
type SummaryOptions struct {
	// MaxLength is the target length in words. Zero lets the backend decide.
	MaxLength int           `json:"max_length,omitempty"`
	Format    SummaryFormat `json:"format,omitempty"`
}

// ProcessType returns the cache process type for these options.
func (o SummaryOptions) ProcessType() string {
	if o.Format == SummaryBullets {
		return "summary_bullets"
	}
	return "summary"
}

// VocabularyAnalysis describes one word from a vocabulary analysis.
type VocabularyAnalysis struct {
	Word             string   `json:"word"`
	Difficulty       int      `json:"difficulty"`
	IsProperNoun     bool     `json:"is_proper_noun"`
	IsTechnicalTerm  bool     `json:"is_technical_term"`
	ExampleSentences []string `json:"example_sentences,omitempty"`
	Definition       string   `json:"definition,omitempty"`
}

// Article is an extraction result stored in the article namespace.
type Article struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Language    string    `json:"language"`
	Byline      string    `json:"byline,omitempty"`
	WordCount   int       `json:"word_count"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// ServiceStatus is the cached availability of every backend.
type ServiceStatus struct {
	BackendAvailable map[BackendID]bool `json:"backend_available"`
	LastChecked      time.Time          `json:"last_checked"`
}

// AnyAvailable reports whether at least one backend is available.
func (s ServiceStatus) AnyAvailable() bool {
	for _, ok := range s.BackendAvailable {
		if ok {
			return true
		}
	}
	return false
}

// Package backend defines the contract every AI provider implements, plus
// the prompt building and response parsing the providers share.
package backend

import (
	"context"
	"fmt"

	"github.com/glossa-app/glossa/pkg/aierr"
	"github.com/glossa-app/glossa/pkg/models"
)

// Backend is one interchangeable AI provider. Every capability method
// returns *aierr.Error values on failure.
type Backend interface {
	ID() models.BackendID
	// IsAvailable probes the provider. It never returns an error; a probe
	// failure reports false.
	IsAvailable(ctx context.Context) bool
	DetectLanguage(ctx context.Context, text string) (string, error)
	Summarize(ctx context.Context, text string, opts models.SummaryOptions) (string, error)
	Rewrite(ctx context.Context, text string, difficulty int) (string, error)
	Translate(ctx context.Context, text, from, to string) (string, error)
	AnalyzeVocabulary(ctx context.Context, words []string, passage string) ([]models.VocabularyAnalysis, error)
	// Close releases held resources. Calls after the first are no-ops.
	Close() error
}

// ValidateDifficulty rejects difficulties outside the supported range.
func ValidateDifficulty(difficulty int) error {
	if difficulty < models.MinDifficulty || difficulty > models.MaxDifficulty {
		return aierr.InvalidInput(fmt.Sprintf("difficulty must be between %d and %d, got %d",
			models.MinDifficulty, models.MaxDifficulty, difficulty))
	}
	return nil
}

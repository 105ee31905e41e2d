// Package cloud adapts an OpenAI-compatible chat completions API.
package cloud

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/glossa-app/glossa/pkg/aierr"
	"github.com/glossa-app/glossa/pkg/backend"
	"github.com/glossa-app/glossa/pkg/models"
)

const providerName = "cloud api"

// DefaultModel is used when the config names none.
const DefaultModel = "gpt-4o-mini"

// Config holds API settings.
type Config struct {
	URL               string
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Backend is the cloud adapter.
type Backend struct {
	client  *openai.Client
	model   string
	hasKey  bool
	limiter *rate.Limiter
	logger  *slog.Logger
	closed  atomic.Bool
}

// New creates a cloud adapter. The logger may be nil. A non-positive
// request rate disables client-side limiting.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.URL != "" {
		clientConfig.BaseURL = cfg.URL
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Backend{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		hasKey:  cfg.APIKey != "",
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("backend", models.BackendCloud),
	}
}

// ID returns models.BackendCloud.
func (b *Backend) ID() models.BackendID {
	return models.BackendCloud
}

// IsAvailable reports whether a key is configured and the API lists models.
func (b *Backend) IsAvailable(ctx context.Context) bool {
	if !b.hasKey || b.closed.Load() {
		return false
	}
	if _, err := b.client.ListModels(ctx); err != nil {
		b.logger.Debug("availability probe failed", "error", err)
		return false
	}
	return true
}

// DetectLanguage returns the language code of text.
func (b *Backend) DetectLanguage(ctx context.Context, text string) (string, error) {
	if err := backend.RequireText(text); err != nil {
		return "", err
	}
	reply, err := b.chat(ctx, backend.LanguagePrompt(text))
	if err != nil {
		return "", err
	}
	return backend.ParseLanguageCode(reply)
}

// Summarize summarizes text.
func (b *Backend) Summarize(ctx context.Context, text string, opts models.SummaryOptions) (string, error) {
	if err := backend.RequireText(text); err != nil {
		return "", err
	}
	return b.complete(ctx, backend.SummaryPrompt(text, opts))
}

// Rewrite rewrites text at the given difficulty.
func (b *Backend) Rewrite(ctx context.Context, text string, difficulty int) (string, error) {
	if err := backend.ValidateDifficulty(difficulty); err != nil {
		return "", err
	}
	if err := backend.RequireText(text); err != nil {
		return "", err
	}
	return b.complete(ctx, backend.RewritePrompt(text, difficulty))
}

// Translate translates text between language codes.
func (b *Backend) Translate(ctx context.Context, text, from, to string) (string, error) {
	if err := backend.RequireText(text); err != nil {
		return "", err
	}
	return b.complete(ctx, backend.TranslatePrompt(text, from, to))
}

// AnalyzeVocabulary analyzes words as used in passage.
func (b *Backend) AnalyzeVocabulary(ctx context.Context, words []string, passage string) ([]models.VocabularyAnalysis, error) {
	if len(words) == 0 {
		return []models.VocabularyAnalysis{}, nil
	}
	reply, err := b.chat(ctx, backend.VocabularyPrompt(words, passage))
	if err != nil {
		return nil, err
	}
	return backend.ParseVocabulary(reply)
}

func (b *Backend) complete(ctx context.Context, prompt string) (string, error) {
	reply, err := b.chat(ctx, prompt)
	if err != nil {
		return "", err
	}
	out := backend.CleanReply(reply)
	if out == "" {
		return "", aierr.ProcessingFailed(providerName+" returned an empty reply", nil)
	}
	return out, nil
}

func (b *Backend) chat(ctx context.Context, prompt string) (string, error) {
	if b.closed.Load() {
		return "", aierr.APIUnavailable(providerName + " backend closed")
	}
	if !b.hasKey {
		return "", aierr.APIUnavailable(providerName + " key not configured")
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return "", aierr.RateLimit(providerName + " request budget exhausted: " + err.Error())
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: backend.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", aierr.ProcessingFailed(providerName+" returned no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps go-openai errors to the taxonomy.
func classify(err error) *aierr.Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return backend.StatusError(providerName, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= 400 {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return backend.StatusError(providerName, reqErr.HTTPStatusCode, body)
	}
	return backend.TransportError(providerName, err)
}

// Close marks the adapter closed. The API holds no session to release.
func (b *Backend) Close() error {
	b.closed.Store(true)
	return nil
}

var _ backend.Backend = (*Backend)(nil)

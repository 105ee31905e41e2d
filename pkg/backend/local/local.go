// Package local talks to an on-device inference server speaking the Ollama
// HTTP API. Generation is streamed as newline-delimited JSON.
package local

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"resty.dev/v3"

	"github.com/glossa-app/glossa/pkg/aierr"
	"github.com/glossa-app/glossa/pkg/backend"
	"github.com/glossa-app/glossa/pkg/models"
)

const providerName = "local model"

// unloadTimeout bounds the model unload request sent on Close.
const unloadTimeout = 5 * time.Second

// maxFrame is the largest NDJSON frame accepted from the server.
const maxFrame = 1 << 20

// Config holds connection settings for the local server.
type Config struct {
	URL     string
	Model   string
	Timeout time.Duration
}

// Backend is the local inference adapter.
type Backend struct {
	client    *resty.Client
	model     string
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

type generateRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt,omitempty"`
	System    string `json:"system,omitempty"`
	Stream    bool   `json:"stream"`
	KeepAlive *int   `json:"keep_alive,omitempty"`
}

type generateFrame struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// New creates a local adapter. The logger may be nil.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &Backend{
		client: client,
		model:  cfg.Model,
		logger: logger.With("backend", models.BackendLocal),
	}
}

// ID returns models.BackendLocal.
func (b *Backend) ID() models.BackendID {
	return models.BackendLocal
}

// IsAvailable reports whether the server answers and has the model pulled.
func (b *Backend) IsAvailable(ctx context.Context) bool {
	var tags tagsResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(&tags).
		Get("/api/tags")
	if err != nil {
		b.logger.Debug("availability probe failed", "error", err)
		return false
	}
	if resp.IsError() {
		b.logger.Debug("availability probe rejected", "status", resp.StatusCode())
		return false
	}
	if b.model == "" {
		return true
	}
	for _, m := range tags.Models {
		if sameModel(m.Name, b.model) || sameModel(m.Model, b.model) {
			return true
		}
	}
	b.logger.Debug("model not installed", "model", b.model)
	return false
}

// sameModel compares model names, treating a missing tag as "latest".
func sameModel(have, want string) bool {
	if have == want {
		return true
	}
	if !strings.Contains(want, ":") {
		return have == want+":latest"
	}
	return false
}

// DetectLanguage returns the language code of text.
func (b *Backend) DetectLanguage(ctx context.Context, text string) (string, error) {
	if err := backend.RequireText(text); err != nil {
		return "", err
	}
	reply, err := b.generate(ctx, backend.LanguagePrompt(text))
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
	reply, err := b.generate(ctx, backend.VocabularyPrompt(words, passage))
	if err != nil {
		return nil, err
	}
	return backend.ParseVocabulary(reply)
}

func (b *Backend) complete(ctx context.Context, prompt string) (string, error) {
	reply, err := b.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	out := backend.CleanReply(reply)
	if out == "" {
		return "", aierr.ProcessingFailed(providerName+" returned an empty reply", nil)
	}
	return out, nil
}

// generate streams one completion and returns the concatenated text.
func (b *Backend) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(generateRequest{
			Model:  b.model,
			Prompt: prompt,
			System: backend.SystemPrompt,
			Stream: true,
		}).
		SetDoNotParseResponse(true).
		Post("/api/generate")
	if err != nil {
		return "", backend.TransportError(providerName, err)
	}
	body := resp.RawResponse.Body
	defer body.Close()

	if resp.StatusCode() >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(body, maxFrame))
		return "", backend.StatusError(providerName, resp.StatusCode(), errorText(raw))
	}

	result := backend.NewFuture[string]()
	go readStream(body, result)
	reply, err := result.Wait(ctx)
	if err != nil {
		return "", backend.TransportError(providerName, err)
	}
	return reply, nil
}

// readStream accumulates response frames until the final one. An error
// frame, a malformed frame or a stream that ends early rejects result.
func readStream(body io.Reader, result *backend.Future[string]) {
	var sb strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrame)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var frame generateFrame
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			result.Reject(aierr.ProcessingFailed("malformed stream frame from "+providerName, err))
			return
		}
		if frame.Error != "" {
			result.Reject(aierr.ProcessingFailed(providerName+": "+frame.Error, nil))
			return
		}
		sb.WriteString(frame.Response)
		if frame.Done {
			result.Resolve(sb.String())
			return
		}
	}
	if err := scanner.Err(); err != nil {
		result.Reject(aierr.Network(providerName+" stream interrupted", err))
		return
	}
	result.Reject(aierr.Network(providerName+" stream ended before completion", nil))
}

func errorText(raw []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return string(raw)
}

// Close asks the server to unload the model and releases the client. Only
// the first call has any effect.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		if b.model != "" {
			ctx, cancel := context.WithTimeout(context.Background(), unloadTimeout)
			defer cancel()
			keepAlive := 0
			resp, err := b.client.R().
				SetContext(ctx).
				SetBody(generateRequest{Model: b.model, KeepAlive: &keepAlive}).
				Post("/api/generate")
			switch {
			case err != nil:
				b.logger.Warn("model unload failed", "model", b.model, "error", err)
			case resp.IsError():
				b.logger.Warn("model unload rejected", "model", b.model, "status", resp.StatusCode())
			default:
				b.logger.Debug("model unloaded", "model", b.model)
			}
		}
		b.closeErr = b.client.Close()
	})
	return b.closeErr
}

var _ backend.Backend = (*Backend)(nil)

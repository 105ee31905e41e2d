package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glossa-app/glossa/pkg/aierr"
	"github.com/glossa-app/glossa/pkg/models"
)

type fakeAPI struct {
	reply  string
	status int
	calls  atomic.Int32
	last   atomic.Value // openai.ChatCompletionRequest
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"gpt-4o-mini","object":"model"}]}`)
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.last.Store(req)

		w.Header().Set("Content-Type", "application/json")
		if f.status != 0 {
			w.WriteHeader(f.status)
			fmt.Fprint(w, `{"error":{"message":"upstream says no","type":"server_error"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "chatcmpl-1",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []openai.ChatCompletionChoice{{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.reply},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	})
	return mux
}

func newTestBackend(t *testing.T, f *fakeAPI, mutate ...func(*Config)) *Backend {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	cfg := Config{URL: srv.URL + "/v1", APIKey: "sk-test", Timeout: 5 * time.Second}
	for _, m := range mutate {
		m(&cfg)
	}
	b := New(cfg, nil)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestTranslate(t *testing.T) {
	f := &fakeAPI{reply: "  bonjour le monde \n"}
	b := newTestBackend(t, f)

	got, err := b.Translate(context.Background(), "hello world", "en", "fr")
	require.NoError(t, err)
	assert.Equal(t, "bonjour le monde", got)

	req := f.last.Load().(openai.ChatCompletionRequest)
	assert.Equal(t, DefaultModel, req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "from en to fr")
}

func TestDetectLanguageAndVocabulary(t *testing.T) {
	b := newTestBackend(t, &fakeAPI{reply: "de"})
	code, err := b.DetectLanguage(context.Background(), "Guten Tag")
	require.NoError(t, err)
	assert.Equal(t, "de", code)

	b = newTestBackend(t, &fakeAPI{reply: `[{"word":"Tag","difficulty":2,"is_proper_noun":false}]`})
	items, err := b.AnalyzeVocabulary(context.Background(), []string{"Tag"}, "Guten Tag")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Tag", items[0].Word)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   aierr.Kind
	}{
		{http.StatusTooManyRequests, aierr.KindRateLimit},
		{http.StatusServiceUnavailable, aierr.KindAPIUnavailable},
		{http.StatusUnauthorized, aierr.KindAPIUnavailable},
		{http.StatusNotFound, aierr.KindAPIUnavailable},
		{http.StatusBadRequest, aierr.KindInvalidInput},
	}
	for _, tt := range tests {
		b := newTestBackend(t, &fakeAPI{status: tt.status})
		_, err := b.Summarize(context.Background(), "text", models.SummaryOptions{})
		require.Error(t, err)
		assert.True(t, aierr.IsKind(err, tt.kind), "status %d gave %v", tt.status, err)
	}
}

func TestTransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b := New(Config{URL: url + "/v1", APIKey: "sk-test", Timeout: time.Second}, nil)
	_, err := b.Translate(context.Background(), "hello", "en", "fr")
	assert.True(t, aierr.IsKind(err, aierr.KindNetwork))
	assert.False(t, b.IsAvailable(context.Background()))
}

func TestMissingKeyIsUnavailable(t *testing.T) {
	f := &fakeAPI{reply: "x"}
	b := newTestBackend(t, f, func(c *Config) { c.APIKey = "" })

	assert.False(t, b.IsAvailable(context.Background()))
	_, err := b.Translate(context.Background(), "hello", "en", "fr")
	assert.True(t, aierr.IsKind(err, aierr.KindAPIUnavailable))
	assert.Zero(t, f.calls.Load())
}

func TestIsAvailable(t *testing.T) {
	b := newTestBackend(t, &fakeAPI{})
	assert.True(t, b.IsAvailable(context.Background()))

	require.NoError(t, b.Close())
	assert.False(t, b.IsAvailable(context.Background()))
	_, err := b.Translate(context.Background(), "hello", "en", "fr")
	assert.True(t, aierr.IsKind(err, aierr.KindAPIUnavailable))
}

func TestRewriteValidatesDifficulty(t *testing.T) {
	f := &fakeAPI{reply: "x"}
	b := newTestBackend(t, f)

	_, err := b.Rewrite(context.Background(), "text", 0)
	assert.True(t, aierr.IsKind(err, aierr.KindInvalidInput))
	assert.Zero(t, f.calls.Load())
}

func TestRateLimiterSurfacesRateLimit(t *testing.T) {
	f := &fakeAPI{reply: "ok"}
	b := newTestBackend(t, f, func(c *Config) {
		c.RequestsPerSecond = 0.01
		c.Burst = 1
	})

	_, err := b.Summarize(context.Background(), "text", models.SummaryOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = b.Summarize(ctx, "text", models.SummaryOptions{})
	assert.True(t, aierr.IsKind(err, aierr.KindRateLimit))
	assert.Equal(t, int32(1), f.calls.Load())
}

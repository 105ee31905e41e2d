// Package coordinator selects a backend for each enrichment request, retries
// and falls back across backends, and caches results.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/glossa-app/glossa/pkg/aierr"
	"github.com/glossa-app/glossa/pkg/backend"
	"github.com/glossa-app/glossa/pkg/cache"
	"github.com/glossa-app/glossa/pkg/config"
	"github.com/glossa-app/glossa/pkg/fingerprint"
	"github.com/glossa-app/glossa/pkg/models"
	"github.com/glossa-app/glossa/pkg/retry"
	"github.com/glossa-app/glossa/pkg/router"
)

// Aggregate failure messages.
const (
	MsgAllFailed     = "All AI services failed"
	MsgNoneAvailable = "No AI services available"
)

// Process types used for processed-content cache keys.
const (
	processLanguage = "language"
	processRewrite  = "rewrite"
)

const defaultProbeTimeout = 10 * time.Second

// Recorder receives one record per backend attempt or skip.
type Recorder interface {
	Record(ctx context.Context, a models.Attempt) error
}

// Coordinator dispatches capabilities to backends. It is safe for
// concurrent use.
type Coordinator struct {
	backends        map[models.BackendID]backend.Backend
	router          *router.Router
	cache           *cache.Manager
	retry           *retry.Handler
	recorder        Recorder
	logger          *slog.Logger
	availabilityTTL time.Duration
	probeTimeout    time.Duration
	now             func() time.Time
	owned           []io.Closer

	mu        sync.Mutex
	available map[models.BackendID]bool
	checkedAt time.Time
	probes    singleflight.Group

	destroyOnce sync.Once
	destroyErr  error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCache enables result caching.
func WithCache(m *cache.Manager) Option {
	return func(c *Coordinator) { c.cache = m }
}

// WithRetry sets the per-backend retry handler.
func WithRetry(h *retry.Handler) Option {
	return func(c *Coordinator) { c.retry = h }
}

// WithRouter sets the capability to backend order resolution.
func WithRouter(r *router.Router) Option {
	return func(c *Coordinator) { c.router = r }
}

// WithRecorder reports attempts to r.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithAvailabilityTTL sets how long probed availability is trusted. Zero or
// less probes on every call.
func WithAvailabilityTTL(d time.Duration) Option {
	return func(c *Coordinator) { c.availabilityTTL = d }
}

// WithProbeTimeout bounds one availability refresh.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.probeTimeout = d }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithOwned hands resources to the coordinator; Destroy closes them after
// the backends.
func WithOwned(closers ...io.Closer) Option {
	return func(c *Coordinator) { c.owned = append(c.owned, closers...) }
}

// New creates a Coordinator over backends. A later backend with the same ID
// replaces an earlier one.
func New(backends []backend.Backend, opts ...Option) *Coordinator {
	c := &Coordinator{
		backends:        make(map[models.BackendID]backend.Backend, len(backends)),
		router:          router.New(config.Default().Coordinator),
		retry:           retry.New(),
		logger:          slog.Default(),
		availabilityTTL: config.Default().Coordinator.AvailabilityTTL,
		probeTimeout:    defaultProbeTimeout,
		now:             time.Now,
	}
	for _, b := range backends {
		c.backends[b.ID()] = b
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache returns the cache manager, or nil when caching is disabled.
func (c *Coordinator) Cache() *cache.Manager {
	return c.cache
}

// Recorder returns the attempt recorder, or nil.
func (c *Coordinator) Recorder() Recorder {
	return c.recorder
}

// DetectLanguage returns the language code of text.
func (c *Coordinator) DetectLanguage(ctx context.Context, text string) (string, error) {
	hash := fingerprint.Of(text)
	if v, ok := c.cachedProcessed(ctx, hash, processLanguage, 0); ok {
		return v, nil
	}
	code, err := dispatch(ctx, c, models.CapabilityDetectLanguage,
		func(ctx context.Context, b backend.Backend) (string, error) {
			return b.DetectLanguage(ctx, text)
		})
	if err != nil {
		return "", err
	}
	c.storeProcessed(ctx, hash, processLanguage, 0, code)
	return code, nil
}

// Summarize summarizes text.
func (c *Coordinator) Summarize(ctx context.Context, text string, opts models.SummaryOptions) (string, error) {
	hash := fingerprint.Of(text)
	if v, ok := c.cachedProcessed(ctx, hash, opts.ProcessType(), opts.MaxLength); ok {
		return v, nil
	}
	summary, err := dispatch(ctx, c, models.CapabilitySummarize,
		func(ctx context.Context, b backend.Backend) (string, error) {
			return b.Summarize(ctx, text, opts)
		})
	if err != nil {
		return "", err
	}
	c.storeProcessed(ctx, hash, opts.ProcessType(), opts.MaxLength, summary)
	return summary, nil
}

// Rewrite rewrites text at a difficulty from 1 to 10.
func (c *Coordinator) Rewrite(ctx context.Context, text string, difficulty int) (string, error) {
	if err := backend.ValidateDifficulty(difficulty); err != nil {
		return "", err
	}
	hash := fingerprint.Of(text)
	if v, ok := c.cachedProcessed(ctx, hash, processRewrite, difficulty); ok {
		return v, nil
	}
	rewritten, err := dispatch(ctx, c, models.CapabilityRewrite,
		func(ctx context.Context, b backend.Backend) (string, error) {
			return b.Rewrite(ctx, text, difficulty)
		})
	if err != nil {
		return "", err
	}
	c.storeProcessed(ctx, hash, processRewrite, difficulty, rewritten)
	return rewritten, nil
}

// Translate translates text. Identical source and target languages return
// text unchanged without touching backends or the cache.
func (c *Coordinator) Translate(ctx context.Context, text, from, to string) (string, error) {
	if from == to {
		return text, nil
	}
	if c.cache != nil {
		if v, ok := c.cache.GetCachedTranslation(ctx, text, from, to); ok {
			return v, nil
		}
	}
	translated, err := dispatch(ctx, c, models.CapabilityTranslate,
		func(ctx context.Context, b backend.Backend) (string, error) {
			return b.Translate(ctx, text, from, to)
		})
	if err != nil {
		return "", err
	}
	if c.cache != nil {
		c.cache.CacheTranslation(ctx, text, from, to, translated)
	}
	return translated, nil
}

// AnalyzeVocabulary analyzes words as used in passage. Proper nouns are
// never returned.
func (c *Coordinator) AnalyzeVocabulary(ctx context.Context, words []string, passage string) ([]models.VocabularyAnalysis, error) {
	if c.cache != nil {
		if v, ok := c.cache.GetCachedVocabulary(ctx, words, passage); ok {
			return withoutProperNouns(v), nil
		}
	}
	items, err := dispatch(ctx, c, models.CapabilityVocabulary,
		func(ctx context.Context, b backend.Backend) ([]models.VocabularyAnalysis, error) {
			return b.AnalyzeVocabulary(ctx, words, passage)
		})
	if err != nil {
		return nil, err
	}
	items = withoutProperNouns(items)
	if c.cache != nil {
		c.cache.CacheVocabulary(ctx, words, passage, items)
	}
	return items, nil
}

func withoutProperNouns(items []models.VocabularyAnalysis) []models.VocabularyAnalysis {
	out := make([]models.VocabularyAnalysis, 0, len(items))
	for _, it := range items {
		if !it.IsProperNoun {
			out = append(out, it)
		}
	}
	return out
}

func (c *Coordinator) cachedProcessed(ctx context.Context, hash, processType string, parameter int) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	return c.cache.GetCachedProcessedContent(ctx, hash, processType, parameter)
}

func (c *Coordinator) storeProcessed(ctx context.Context, hash, processType string, parameter int, value string) {
	if c.cache != nil {
		c.cache.CacheProcessedContent(ctx, hash, processType, parameter, value)
	}
}

// attemptResult is the outcome of exhausting one backend.
type attemptResult[T any] struct {
	value    T
	err      *aierr.Error
	attempts int
	latency  time.Duration
}

func (r attemptResult[T]) ok() bool { return r.err == nil }

// dispatch walks the fallback chain for capability. Per-backend outcomes
// stay values; only the final outcome becomes an error.
func dispatch[T any](ctx context.Context, c *Coordinator, capability models.Capability, op func(context.Context, backend.Backend) (T, error)) (T, error) {
	var zero T
	requestID := uuid.NewString()
	logger := c.logger.With("request_id", requestID, "capability", capability)

	available := c.availability(ctx)
	var failures []error
	attempted := 0

	for _, id := range c.router.Resolve(capability) {
		b, ok := c.backends[id]
		if !ok {
			continue
		}
		if !available[id] {
			logger.Debug("backend unavailable, skipping", "backend", id)
			c.record(ctx, models.Attempt{
				RequestID:  requestID,
				Capability: capability,
				Backend:    id,
				Outcome:    models.OutcomeSkipped,
			})
			continue
		}

		attempted++
		res := attempt(ctx, c, b, op)
		c.record(ctx, attemptRecord(requestID, capability, id, res))
		if res.ok() {
			return res.value, nil
		}

		logger.Warn("backend exhausted", "backend", id, "attempt", res.attempts, "error", res.err)
		if res.err.Kind == aierr.KindInvalidInput {
			return zero, res.err
		}
		if res.err.Kind == aierr.KindAPIUnavailable {
			c.markUnavailable(id)
		}
		failures = append(failures, fmt.Errorf("%s: %w", id, res.err))
	}

	if attempted == 0 {
		logger.Warn(MsgNoneAvailable)
		return zero, aierr.APIUnavailable(MsgNoneAvailable)
	}
	return zero, aierr.ProcessingFailed(MsgAllFailed, errors.Join(failures...))
}

func attempt[T any](ctx context.Context, c *Coordinator, b backend.Backend, op func(context.Context, backend.Backend) (T, error)) attemptResult[T] {
	var res attemptResult[T]
	start := time.Now()
	v, err := retry.Do(ctx, c.retry, func(ctx context.Context) (T, error) {
		res.attempts++
		return op(ctx, b)
	}, nil)
	res.latency = time.Since(start)
	if err != nil {
		res.err = aierr.Normalize(err)
		return res
	}
	res.value = v
	return res
}

func attemptRecord[T any](requestID string, capability models.Capability, id models.BackendID, res attemptResult[T]) models.Attempt {
	a := models.Attempt{
		RequestID:  requestID,
		Capability: capability,
		Backend:    id,
		Outcome:    models.OutcomeSuccess,
		Attempts:   res.attempts,
		LatencyMs:  res.latency.Milliseconds(),
	}
	if res.err != nil {
		a.Outcome = models.OutcomeFailure
		a.ErrorKind = string(res.err.Kind)
		a.Message = res.err.Message
	}
	return a
}

func (c *Coordinator) record(ctx context.Context, a models.Attempt) {
	if c.recorder == nil {
		return
	}
	a.CreatedAt = c.now()
	if err := c.recorder.Record(ctx, a); err != nil {
		c.logger.Warn("attempt not recorded", "request_id", a.RequestID, "error", err)
	}
}

// availability returns the cached availability map, probing every backend
// when it is stale. Concurrent refreshes share one probe.
func (c *Coordinator) availability(ctx context.Context) map[models.BackendID]bool {
	c.mu.Lock()
	if c.fresh() {
		snapshot := copyAvailability(c.available)
		c.mu.Unlock()
		return snapshot
	}
	c.mu.Unlock()
	return c.refresh(ctx)
}

func (c *Coordinator) fresh() bool {
	return c.available != nil && c.now().Sub(c.checkedAt) < c.availabilityTTL
}

// refresh probes every backend. Probes outlive the caller's cancellation so
// one abandoned request cannot publish an all-unavailable map; a refresh cut
// short by the probe timeout is returned but not cached.
func (c *Coordinator) refresh(ctx context.Context) map[models.BackendID]bool {
	v, _, _ := c.probes.Do("availability", func() (any, error) {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.probeTimeout)
		defer cancel()

		probed := make(map[models.BackendID]bool, len(c.backends))
		var mu sync.Mutex
		var wg sync.WaitGroup
		for id, b := range c.backends {
			wg.Add(1)
			go func(id models.BackendID, b backend.Backend) {
				defer wg.Done()
				ok := b.IsAvailable(probeCtx)
				mu.Lock()
				probed[id] = ok
				mu.Unlock()
			}(id, b)
		}
		wg.Wait()

		if err := probeCtx.Err(); err != nil {
			c.logger.Warn("backend availability probe timed out", "timeout", c.probeTimeout, "available", probed)
			return probed, nil
		}

		c.mu.Lock()
		c.available = copyAvailability(probed)
		c.checkedAt = c.now()
		c.mu.Unlock()
		c.logger.Debug("backend availability refreshed", "available", probed)
		return probed, nil
	})
	return copyAvailability(v.(map[models.BackendID]bool))
}

// markUnavailable flips id to unavailable until the next refresh.
func (c *Coordinator) markUnavailable(id models.BackendID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.available != nil {
		c.available[id] = false
	}
}

func copyAvailability(m map[models.BackendID]bool) map[models.BackendID]bool {
	out := make(map[models.BackendID]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Status returns the cached availability, refreshing it when stale.
func (c *Coordinator) Status(ctx context.Context) models.ServiceStatus {
	available := c.availability(ctx)
	return c.status(available)
}

// RefreshStatus probes every backend now.
func (c *Coordinator) RefreshStatus(ctx context.Context) models.ServiceStatus {
	return c.status(c.refresh(ctx))
}

func (c *Coordinator) status(available map[models.BackendID]bool) models.ServiceStatus {
	c.mu.Lock()
	checked := c.checkedAt
	c.mu.Unlock()
	return models.ServiceStatus{BackendAvailable: available, LastChecked: checked}
}

// Destroy closes every backend and owned resource. Only the first call has
// any effect; later calls return the same result.
func (c *Coordinator) Destroy() error {
	c.destroyOnce.Do(func() {
		var errs []string
		for _, id := range models.BackendIDs {
			if b, ok := c.backends[id]; ok {
				if err := b.Close(); err != nil {
					errs = append(errs, fmt.Sprintf("close %s backend: %v", id, err))
				}
			}
		}
		for _, cl := range c.owned {
			if err := cl.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			c.destroyErr = fmt.Errorf("destroy coordinator: %s", strings.Join(errs, "; "))
		}
	})
	return c.destroyErr
}

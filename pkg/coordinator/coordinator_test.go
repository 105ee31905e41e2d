package coordinator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glossa-app/glossa/pkg/aierr"
	"github.com/glossa-app/glossa/pkg/backend"
	"github.com/glossa-app/glossa/pkg/cache"
	"github.com/glossa-app/glossa/pkg/config"
	"github.com/glossa-app/glossa/pkg/models"
	"github.com/glossa-app/glossa/pkg/retry"
	"github.com/glossa-app/glossa/pkg/router"
	"github.com/glossa-app/glossa/pkg/store/memory"
)

// fakeBackend answers every capability with reply, after failing the first
// len(failures) calls with the scripted errors.
type fakeBackend struct {
	id        models.BackendID
	available atomic.Bool
	reply     string
	vocab     []models.VocabularyAnalysis

	mu       sync.Mutex
	failures []error
	calls    int
	probes   int
	closes   int
}

func newFake(id models.BackendID, reply string, failures ...error) *fakeBackend {
	f := &fakeBackend{id: id, reply: reply, failures: failures}
	f.available.Store(true)
	return f
}

func (f *fakeBackend) next() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.failures) == 0 {
		return nil
	}
	err := f.failures[0]
	if len(f.failures) > 1 {
		f.failures = f.failures[1:]
	}
	return err
}

func (f *fakeBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeBackend) Probes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

func (f *fakeBackend) ID() models.BackendID { return f.id }

func (f *fakeBackend) IsAvailable(context.Context) bool {
	f.mu.Lock()
	f.probes++
	f.mu.Unlock()
	return f.available.Load()
}

func (f *fakeBackend) DetectLanguage(context.Context, string) (string, error) {
	if err := f.next(); err != nil {
		return "", err
	}
	return f.reply, nil
}

func (f *fakeBackend) Summarize(context.Context, string, models.SummaryOptions) (string, error) {
	if err := f.next(); err != nil {
		return "", err
	}
	return f.reply, nil
}

func (f *fakeBackend) Rewrite(_ context.Context, _ string, difficulty int) (string, error) {
	if err := backend.ValidateDifficulty(difficulty); err != nil {
		return "", err
	}
	if err := f.next(); err != nil {
		return "", err
	}
	return f.reply, nil
}

func (f *fakeBackend) Translate(context.Context, string, string, string) (string, error) {
	if err := f.next(); err != nil {
		return "", err
	}
	return f.reply, nil
}

func (f *fakeBackend) AnalyzeVocabulary(context.Context, []string, string) ([]models.VocabularyAnalysis, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return f.vocab, nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// alwaysFail keeps failing with err.
func alwaysFail(err error) []error { return []error{err} }

type memRecorder struct {
	mu       sync.Mutex
	attempts []models.Attempt
}

func (r *memRecorder) Record(_ context.Context, a models.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *memRecorder) All() []models.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Attempt(nil), r.attempts...)
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestCoordinator(t *testing.T, backends []backend.Backend, opts ...Option) (*Coordinator, *memRecorder) {
	t.Helper()
	rec := &memRecorder{}
	base := []Option{
		WithRetry(retry.New(retry.WithSleep(noSleep))),
		WithCache(cache.New(memory.New(0), nil)),
		WithRecorder(rec),
	}
	c := New(backends, append(base, opts...)...)
	t.Cleanup(func() { _ = c.Destroy() })
	return c, rec
}

func TestFallbackToSecondBackend(t *testing.T) {
	a := newFake(models.BackendLocal, "from A", alwaysFail(aierr.Network("down", nil))...)
	b := newFake(models.BackendCloud, "from B")
	c, rec := newTestCoordinator(t, []backend.Backend{a, b})

	got, err := c.Summarize(context.Background(), "text", models.SummaryOptions{MaxLength: 10})
	require.NoError(t, err)
	assert.Equal(t, "from B", got)
	assert.Equal(t, 3, a.Calls(), "first backend exhausts its retry budget")
	assert.Equal(t, 1, b.Calls())

	attempts := rec.All()
	require.Len(t, attempts, 2)
	assert.Equal(t, models.OutcomeFailure, attempts[0].Outcome)
	assert.Equal(t, 3, attempts[0].Attempts)
	assert.Equal(t, string(aierr.KindNetwork), attempts[0].ErrorKind)
	assert.Equal(t, models.OutcomeSuccess, attempts[1].Outcome)
	assert.Equal(t, attempts[0].RequestID, attempts[1].RequestID)
	assert.NotEmpty(t, attempts[0].RequestID)
}

func TestNonRetryableFailureFallsBackWithoutRetry(t *testing.T) {
	a := newFake(models.BackendLocal, "", alwaysFail(aierr.ProcessingFailed("garbled", nil))...)
	b := newFake(models.BackendCloud, "ok")
	c, _ := newTestCoordinator(t, []backend.Backend{a, b})

	got, err := c.Translate(context.Background(), "hello", "en", "fr")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, a.Calls())
}

func TestAllBackendsFail(t *testing.T) {
	a := newFake(models.BackendLocal, "", alwaysFail(aierr.Network("a down", nil))...)
	b := newFake(models.BackendCloud, "", alwaysFail(aierr.ProcessingFailed("b broke", nil))...)
	c, _ := newTestCoordinator(t, []backend.Backend{a, b})

	_, err := c.DetectLanguage(context.Background(), "text")
	require.Error(t, err)

	var aiErr *aierr.Error
	require.ErrorAs(t, err, &aiErr)
	assert.Equal(t, aierr.KindProcessingFailed, aiErr.Kind)
	assert.Equal(t, MsgAllFailed, aiErr.Message)
	assert.Contains(t, err.Error(), "a down")
	assert.Contains(t, err.Error(), "b broke")
}

func TestNoBackendsAvailable(t *testing.T) {
	a := newFake(models.BackendLocal, "x")
	b := newFake(models.BackendCloud, "x")
	a.available.Store(false)
	b.available.Store(false)
	c, rec := newTestCoordinator(t, []backend.Backend{a, b})

	_, err := c.Summarize(context.Background(), "text", models.SummaryOptions{})
	var aiErr *aierr.Error
	require.ErrorAs(t, err, &aiErr)
	assert.Equal(t, aierr.KindAPIUnavailable, aiErr.Kind)
	assert.Equal(t, MsgNoneAvailable, aiErr.Message)
	assert.Zero(t, a.Calls()+b.Calls())

	for _, at := range rec.All() {
		assert.Equal(t, models.OutcomeSkipped, at.Outcome)
	}
}

func TestNoBackendsConfigured(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	_, err := c.Summarize(context.Background(), "text", models.SummaryOptions{})
	assert.True(t, aierr.IsKind(err, aierr.KindAPIUnavailable))
}

func TestUnavailableBackendIsSkipped(t *testing.T) {
	a := newFake(models.BackendLocal, "from A")
	a.available.Store(false)
	b := newFake(models.BackendCloud, "from B")
	c, _ := newTestCoordinator(t, []backend.Backend{a, b})

	got, err := c.Summarize(context.Background(), "text", models.SummaryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "from B", got)
	assert.Zero(t, a.Calls())
}

func TestInvalidInputStopsTheChain(t *testing.T) {
	a := newFake(models.BackendLocal, "", alwaysFail(aierr.InvalidInput("text too long"))...)
	b := newFake(models.BackendCloud, "ok")
	c, _ := newTestCoordinator(t, []backend.Backend{a, b})

	_, err := c.Summarize(context.Background(), "text", models.SummaryOptions{})
	assert.True(t, aierr.IsKind(err, aierr.KindInvalidInput))
	assert.Equal(t, 1, a.Calls())
	assert.Zero(t, b.Calls())
}

func TestRewriteRejectsDifficultyUpFront(t *testing.T) {
	a := newFake(models.BackendLocal, "ok")
	c, _ := newTestCoordinator(t, []backend.Backend{a})

	_, err := c.Rewrite(context.Background(), "text", 0)
	assert.True(t, aierr.IsKind(err, aierr.KindInvalidInput))
	assert.Zero(t, a.Calls())
	assert.Zero(t, a.Probes())
}

func TestSameLanguageTranslationBypass(t *testing.T) {
	a := newFake(models.BackendLocal, "translated")
	st := memory.New(0)
	m := cache.New(st, nil)
	c, rec := newTestCoordinator(t, []backend.Backend{a}, WithCache(m))
	ctx := context.Background()

	for _, text := range []string{"", "   \t\n", strings.Repeat("long text ", 100_000)} {
		start := time.Now()
		got, err := c.Translate(ctx, text, "en", "en")
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Equal(t, text, got)
		assert.Less(t, elapsed, 10*time.Millisecond)
	}

	assert.Zero(t, a.Calls())
	assert.Zero(t, a.Probes(), "no availability check")
	assert.Empty(t, rec.All())
	stats := m.GetAllStats()[models.NamespaceTranslation]
	assert.Zero(t, stats.Hits+stats.Misses, "no cache lookup")
	entries, _ := st.Scan(ctx, "")
	assert.Empty(t, entries, "no cache write")
}

func TestResultsAreCached(t *testing.T) {
	a := newFake(models.BackendLocal, "summary")
	c, _ := newTestCoordinator(t, []backend.Backend{a})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.Summarize(ctx, "same text", models.SummaryOptions{MaxLength: 50})
		require.NoError(t, err)
		assert.Equal(t, "summary", got)
	}
	assert.Equal(t, 1, a.Calls())

	_, err := c.Summarize(ctx, "same text", models.SummaryOptions{MaxLength: 51})
	require.NoError(t, err)
	assert.Equal(t, 2, a.Calls(), "different length is a different entry")

	_, err = c.Summarize(ctx, "same text", models.SummaryOptions{MaxLength: 50, Format: models.SummaryBullets})
	require.NoError(t, err)
	assert.Equal(t, 3, a.Calls(), "different format is a different entry")

	_, _ = c.Translate(ctx, "hi", "en", "fr")
	_, _ = c.Translate(ctx, "hi", "en", "fr")
	assert.Equal(t, 4, a.Calls())

	_, _ = c.Rewrite(ctx, "hi", 3)
	_, _ = c.Rewrite(ctx, "hi", 3)
	_, _ = c.DetectLanguage(ctx, "hi")
	_, _ = c.DetectLanguage(ctx, "hi")
	assert.Equal(t, 6, a.Calls())
}

func TestFailuresAreNotCached(t *testing.T) {
	a := newFake(models.BackendLocal, "ok", aierr.ProcessingFailed("first call breaks", nil), nil)
	c, _ := newTestCoordinator(t, []backend.Backend{a})
	ctx := context.Background()

	_, err := c.Summarize(ctx, "text", models.SummaryOptions{})
	require.Error(t, err)

	got, err := c.Summarize(ctx, "text", models.SummaryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestVocabularyDropsProperNouns(t *testing.T) {
	items := []models.VocabularyAnalysis{
		{Word: "ephemeral", Difficulty: 7},
		{Word: "Paris", Difficulty: 2, IsProperNoun: true},
		{Word: "kernel", Difficulty: 5, IsTechnicalTerm: true},
	}
	for _, id := range models.BackendIDs {
		f := newFake(id, "")
		f.vocab = items
		c, _ := newTestCoordinator(t, []backend.Backend{f})

		for i := 0; i < 2; i++ { // fresh then cached
			got, err := c.AnalyzeVocabulary(context.Background(), []string{"ephemeral", "Paris", "kernel"}, "ctx")
			require.NoError(t, err)
			require.Len(t, got, 2, "backend %s", id)
			for _, it := range got {
				assert.False(t, it.IsProperNoun)
			}
		}
		assert.Equal(t, 1, f.Calls())
	}
}

func TestPreferenceOrder(t *testing.T) {
	a := newFake(models.BackendLocal, "local")
	b := newFake(models.BackendCloud, "cloud")
	cfg := config.Default().Coordinator
	cfg.Preferences = map[models.Capability][]models.BackendID{
		models.CapabilityTranslate: {models.BackendCloud, models.BackendLocal},
	}
	c, _ := newTestCoordinator(t, []backend.Backend{a, b}, WithRouter(router.New(cfg)))

	got, err := c.Translate(context.Background(), "hi", "en", "de")
	require.NoError(t, err)
	assert.Equal(t, "cloud", got)

	got, err = c.Summarize(context.Background(), "hi", models.SummaryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "local", got)
}

func TestAvailabilityIsCachedAndRefreshed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	advance := func(d time.Duration) { mu.Lock(); now = now.Add(d); mu.Unlock() }

	a := newFake(models.BackendLocal, "ok")
	c, _ := newTestCoordinator(t, []backend.Backend{a},
		WithClock(clock), WithAvailabilityTTL(30*time.Second), WithCache(nil))
	ctx := context.Background()

	_, _ = c.Summarize(ctx, "1", models.SummaryOptions{})
	_, _ = c.Summarize(ctx, "2", models.SummaryOptions{})
	assert.Equal(t, 1, a.Probes())

	advance(31 * time.Second)
	_, _ = c.Summarize(ctx, "3", models.SummaryOptions{})
	assert.Equal(t, 2, a.Probes())

	status := c.Status(ctx)
	assert.True(t, status.BackendAvailable[models.BackendLocal])
	assert.Equal(t, now, status.LastChecked)

	c.RefreshStatus(ctx)
	assert.Equal(t, 3, a.Probes())
}

func TestCachedAvailableBackendStillRetriesThenFallsBack(t *testing.T) {
	a := newFake(models.BackendLocal, "", alwaysFail(aierr.RateLimit("slow down"))...)
	b := newFake(models.BackendCloud, "ok")
	c, _ := newTestCoordinator(t, []backend.Backend{a, b})

	got, err := c.Summarize(context.Background(), "text", models.SummaryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, a.Calls())
	assert.True(t, c.Status(context.Background()).BackendAvailable[models.BackendLocal],
		"transient failures leave availability alone")
}

func TestUnavailableExhaustionMarksBackendDown(t *testing.T) {
	a := newFake(models.BackendLocal, "", alwaysFail(aierr.APIUnavailable("model unloaded"))...)
	b := newFake(models.BackendCloud, "ok")
	c, _ := newTestCoordinator(t, []backend.Backend{a, b})
	ctx := context.Background()

	_, err := c.Summarize(ctx, "one", models.SummaryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Calls())
	assert.False(t, c.Status(ctx).BackendAvailable[models.BackendLocal])

	_, err = c.Summarize(ctx, "two", models.SummaryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Calls(), "skipped until the next refresh")

	c.RefreshStatus(ctx)
	_, _ = c.Summarize(ctx, "three", models.SummaryOptions{})
	assert.Equal(t, 2, a.Calls())
}

func TestConcurrentRefreshesShareOneProbe(t *testing.T) {
	a := newFake(models.BackendLocal, "ok")
	c, _ := newTestCoordinator(t, []backend.Backend{a}, WithCache(nil))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Summarize(context.Background(), "text", models.SummaryOptions{})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, a.Probes(), 20)
	assert.Equal(t, 20, a.Calls())
}

func TestRefreshAndMarkUnavailableRace(t *testing.T) {
	a := newFake(models.BackendLocal, "ok")
	b := newFake(models.BackendCloud, "ok")
	c, _ := newTestCoordinator(t, []backend.Backend{a, b}, WithAvailabilityTTL(0))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got := c.refresh(ctx)
				assert.Len(t, got, 2)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.markUnavailable(models.BackendLocal)
			}
		}()
	}
	wg.Wait()

	assert.True(t, c.RefreshStatus(ctx).BackendAvailable[models.BackendLocal])
}

// ctxAwareBackend reports itself available only while the probe context
// is live.
type ctxAwareBackend struct{ *fakeBackend }

func (b *ctxAwareBackend) IsAvailable(ctx context.Context) bool {
	b.fakeBackend.IsAvailable(ctx)
	return ctx.Err() == nil
}

func TestCancelledCallerDoesNotPoisonAvailability(t *testing.T) {
	a := &ctxAwareBackend{fakeBackend: newFake(models.BackendLocal, "ok")}
	c, _ := newTestCoordinator(t, []backend.Backend{a}, WithCache(nil))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = c.Summarize(cancelled, "first", models.SummaryOptions{})

	got, err := c.Summarize(context.Background(), "second", models.SummaryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.True(t, c.Status(context.Background()).BackendAvailable[models.BackendLocal])
}

// hangingBackend never answers a probe before its context ends.
type hangingBackend struct{ *fakeBackend }

func (b *hangingBackend) IsAvailable(ctx context.Context) bool {
	b.fakeBackend.IsAvailable(ctx)
	<-ctx.Done()
	return false
}

func TestTimedOutProbeIsNotCached(t *testing.T) {
	a := &hangingBackend{fakeBackend: newFake(models.BackendLocal, "ok")}
	c, _ := newTestCoordinator(t, []backend.Backend{a}, WithProbeTimeout(10*time.Millisecond))
	ctx := context.Background()

	first := c.Status(ctx)
	assert.False(t, first.BackendAvailable[models.BackendLocal])
	assert.True(t, first.LastChecked.IsZero())

	c.Status(ctx)
	assert.Equal(t, 2, a.Probes(), "a timed out refresh is probed again")
}

func TestPanickingBackendIsNormalized(t *testing.T) {
	p := &panicBackend{fakeBackend: newFake(models.BackendLocal, "")}
	b := newFake(models.BackendCloud, "ok")
	c, _ := newTestCoordinator(t, []backend.Backend{p, b})

	got, err := c.Summarize(context.Background(), "text", models.SummaryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

type panicBackend struct{ *fakeBackend }

func (p *panicBackend) Summarize(context.Context, string, models.SummaryOptions) (string, error) {
	panic("native session crashed")
}

func TestDestroyClosesOnce(t *testing.T) {
	a := newFake(models.BackendLocal, "ok")
	b := newFake(models.BackendCloud, "ok")
	owned := &countingCloser{}
	c := New([]backend.Backend{a, b}, WithOwned(owned))

	require.NoError(t, c.Destroy())
	require.NoError(t, c.Destroy())
	assert.Equal(t, 1, a.closes)
	assert.Equal(t, 1, b.closes)
	assert.Equal(t, 1, owned.n)
}

type countingCloser struct{ n int }

func (c *countingCloser) Close() error { c.n++; return nil }

func TestDestroyReportsCloseErrors(t *testing.T) {
	c := New(nil, WithOwned(failingCloser{}))
	err := c.Destroy()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
	assert.Equal(t, err, c.Destroy())
}

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("store locked") }

func TestFromConfigAndDefault(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "glossa.yaml")
	content := "store:\n  kind: memory\nledger:\n  db_path: " + filepath.Join(dir, "ledger.db") + "\n" +
		"backends:\n  local:\n    enabled: false\n  cloud:\n    enabled: false\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	t.Setenv(ConfigEnv, cfgPath)
	t.Cleanup(func() { _ = ResetDefault() })

	first, err := Default()
	require.NoError(t, err)
	second, err := Default()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.NotNil(t, first.Cache())

	_, err = first.Summarize(context.Background(), "text", models.SummaryOptions{})
	assert.True(t, aierr.IsKind(err, aierr.KindAPIUnavailable))

	require.NoError(t, ResetDefault())
	third, err := Default()
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestOpenStoreRejectsUnknownKind(t *testing.T) {
	_, err := OpenStore(context.Background(), config.StoreConfig{Kind: "etcd"})
	assert.Error(t, err)
}

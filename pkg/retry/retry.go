// Package retry executes fallible AI operations with a bounded attempt
// budget and exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/glossa-app/glossa/pkg/aierr"
)

// Defaults used when no option overrides them.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// Predicate decides whether a normalized failure should be retried.
type Predicate func(*aierr.Error) bool

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Handler runs operations with bounded retries and exponential backoff.
type Handler struct {
	maxRetries int
	baseDelay  time.Duration
	sleep      SleepFunc
	logger     *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithMaxRetries sets the total attempt budget.
func WithMaxRetries(n int) Option {
	return func(h *Handler) { h.maxRetries = n }
}

// WithBaseDelay sets the first backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(h *Handler) { h.baseDelay = d }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(h *Handler) { h.sleep = fn }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// New creates a Handler.
func New(opts ...Option) *Handler {
	h := &Handler{
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		sleep:      sleepContext,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MaxRetries returns the attempt budget.
func (h *Handler) MaxRetries() int {
	return h.maxRetries
}

// DefaultPredicate retries exactly the failures marked retryable.
func DefaultPredicate(err *aierr.Error) bool {
	return err.Retryable
}

// Backoff returns the wait after the attempt with the given zero-based index.
func (h *Handler) Backoff(attemptIndex int) time.Duration {
	return h.baseDelay * time.Duration(1<<uint(attemptIndex))
}

// Execute runs op until it succeeds, shouldRetry rejects the failure, or the
// attempt budget is spent. A nil shouldRetry means DefaultPredicate. The
// returned error is always an *aierr.Error.
func (h *Handler) Execute(ctx context.Context, op func(ctx context.Context) error, shouldRetry Predicate) error {
	_, err := Do(ctx, h, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, shouldRetry)
	return err
}

// Do is the value-returning form of Execute.
func Do[T any](ctx context.Context, h *Handler, op func(ctx context.Context) (T, error), shouldRetry Predicate) (T, error) {
	if shouldRetry == nil {
		shouldRetry = DefaultPredicate
	}
	budget := h.maxRetries
	if budget < 1 {
		budget = 1
	}

	var zero T
	var lastErr *aierr.Error
	for attempt := 0; attempt < budget; attempt++ {
		v, err := invoke(ctx, op)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == budget-1 {
			break
		}

		wait := h.Backoff(attempt)
		h.logger.Debug("ai operation failed, retrying",
			"attempt", attempt+1,
			"wait", wait,
			"kind", err.Kind,
			"error", err.Message)
		if serr := h.sleep(ctx, wait); serr != nil {
			return zero, aierr.Normalize(serr)
		}
	}
	return zero, lastErr
}

// invoke calls op once, converting panics and raw errors into the taxonomy.
func invoke[T any](ctx context.Context, op func(ctx context.Context) (T, error)) (v T, aiErr *aierr.Error) {
	defer func() {
		if r := recover(); r != nil {
			aiErr = aierr.FromPanic(r)
		}
	}()
	v, err := op(ctx)
	if err != nil {
		return v, aierr.Normalize(err)
	}
	return v, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

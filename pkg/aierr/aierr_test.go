package aierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryableIsDerivedFromKind(t *testing.T) {
	cases := map[Kind]bool{
		KindNetwork:          true,
		KindRateLimit:        true,
		KindAPIUnavailable:   false,
		KindInvalidInput:     false,
		KindProcessingFailed: false,
	}
	for kind, want := range cases {
		assert.Equal(t, want, New(kind, "x").Retryable, "kind %s", kind)
		assert.Equal(t, want, kind.Retryable(), "kind %s", kind)
	}
}

func TestNormalizeKeepsTaxonomyErrors(t *testing.T) {
	orig := RateLimit("slow down")
	wrapped := fmt.Errorf("calling backend: %w", orig)

	got := Normalize(wrapped)
	require.NotNil(t, got)
	assert.Same(t, orig, got)
}

func TestNormalizeRawError(t *testing.T) {
	got := Normalize(errors.New("boom"))
	assert.Equal(t, KindProcessingFailed, got.Kind)
	assert.Equal(t, "boom", got.Message)
	assert.False(t, got.Retryable)
}

func TestNormalizeNetworkErrors(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	assert.Equal(t, KindNetwork, Normalize(opErr).Kind)
	assert.Equal(t, KindNetwork, Normalize(context.DeadlineExceeded).Kind)
	assert.Nil(t, Normalize(nil))
}

func TestFromPanic(t *testing.T) {
	e := FromPanic("not an error")
	assert.Equal(t, KindProcessingFailed, e.Kind)
	assert.Equal(t, UnknownMessage, e.Message)
	assert.False(t, e.Retryable)

	e = FromPanic(errors.New("exploded"))
	assert.Equal(t, KindProcessingFailed, e.Kind)
	assert.Equal(t, "exploded", e.Message)
}

func TestKindOfAndIsKind(t *testing.T) {
	err := fmt.Errorf("wrap: %w", InvalidInput("difficulty out of range"))
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.True(t, IsKind(err, KindInvalidInput))
	assert.False(t, IsKind(err, KindNetwork))
	assert.Equal(t, KindProcessingFailed, KindOf(errors.New("plain")))
}

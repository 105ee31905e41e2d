package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/glossa-app/glossa/pkg/aierr"
)

// StatusError maps an HTTP error status from a provider to the taxonomy.
func StatusError(provider string, status int, body string) *aierr.Error {
	msg := fmt.Sprintf("%s returned status %d", provider, status)
	if body = strings.TrimSpace(body); body != "" {
		msg += ": " + body
	}
	switch {
	case status == http.StatusTooManyRequests:
		return aierr.RateLimit(msg)
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge:
		return aierr.InvalidInput(msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound:
		return aierr.APIUnavailable(msg)
	case status >= 500:
		return aierr.APIUnavailable(msg)
	default:
		return aierr.ProcessingFailed(msg, nil)
	}
}

// TransportError maps a failure to reach a provider to the taxonomy.
func TransportError(provider string, err error) *aierr.Error {
	var aiErr *aierr.Error
	if errors.As(err, &aiErr) {
		return aiErr
	}
	if errors.Is(err, context.Canceled) {
		return aierr.ProcessingFailed(provider+" request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return aierr.Network(provider+" request timed out", err)
	}
	return aierr.Network(provider+" unreachable", err)
}

// RequireText rejects blank input before a provider is called.
func RequireText(text string) error {
	if strings.TrimSpace(text) == "" {
		return aierr.InvalidInput("text is empty")
	}
	return nil
}

package scanning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrTransient marks provider failures that are worth one more attempt
// (rate limits, 5xx, timeouts)
var ErrTransient = errors.New("transient scanner error")

// Scanner is the vision-AI capability: given a prompt and one image it
// returns the model's free-form text judgment
type Scanner interface {
	// Invoke sends the prompt and image to the model and returns its reply verbatim
	Invoke(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
	// Close closes the scanner and releases resources
	Close() error
}

// Generation settings shared by every provider
const (
	Temperature = 0.1
	MaxTokens   = 500
)

// transient wraps err so errors.Is(err, ErrTransient) holds
func transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// transientStatus reports whether an HTTP status from a provider should be retried
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= http.StatusInternalServerError
}

// classifyCallError wraps a provider call error, marking timeouts and
// retryable statuses as transient
func classifyCallError(prefix string, code int, err error) error {
	wrapped := fmt.Errorf("%s: %w", prefix, err)
	if errors.Is(err, context.DeadlineExceeded) || transientStatus(code) {
		return transient(wrapped)
	}
	return wrapped
}

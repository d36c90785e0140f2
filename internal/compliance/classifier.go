package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/merchant-validator/internal/scanning"
)

// DefaultRetryDelay is the pause before the single retry of a transient model failure
const DefaultRetryDelay = 2 * time.Second

// ClassificationError is a hard failure to obtain a judgment from the model
type ClassificationError struct {
	Op  string
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// Classifier turns image bytes into a Verdict using a vision model
type Classifier struct {
	scanner    scanning.Scanner
	banned     *BannedWords
	prompt     string
	retryDelay time.Duration
}

// NewClassifier creates a Classifier. A nil bannedWords uses DefaultBannedWords.
func NewClassifier(scanner scanning.Scanner, bannedWords []string) *Classifier {
	if bannedWords == nil {
		bannedWords = DefaultBannedWords
	}
	banned := NewBannedWords(bannedWords)
	return &Classifier{
		scanner:    scanner,
		banned:     banned,
		prompt:     BuildPrompt(banned.Words()),
		retryDelay: DefaultRetryDelay,
	}
}

// WithRetryDelay overrides the pause before retrying a transient failure
func (c *Classifier) WithRetryDelay(d time.Duration) *Classifier {
	c.retryDelay = d
	return c
}

// Prompt returns the instruction prompt sent with every image
func (c *Classifier) Prompt() string {
	return c.prompt
}

// Classify judges one image. Errors are always *ClassificationError and mean
// no judgment was made; the caller records them as ERROR, never REJECTED.
func (c *Classifier) Classify(ctx context.Context, image []byte, contentType, merchantName string) (Verdict, error) {
	prepared, mimeType, err := scanning.PrepareImage(image, contentType)
	if err != nil {
		return Verdict{}, &ClassificationError{Op: "preparing image", Err: err}
	}

	text, err := c.invoke(ctx, prepared, mimeType)
	if err != nil {
		return Verdict{}, &ClassificationError{Op: "invoking model", Err: err}
	}

	v := ParseResponse(text)
	if matches := c.banned.Match(merchantName); len(matches) > 0 {
		slog.Debug("Merchant name contains banned words", "merchant", merchantName, "words", matches)
		v = Escalate(v, matches)
	}
	return v, nil
}

// invoke calls the model, retrying once on a transient failure
func (c *Classifier) invoke(ctx context.Context, image []byte, mimeType string) (string, error) {
	text, err := c.scanner.Invoke(ctx, c.prompt, image, mimeType)
	if err == nil || !errors.Is(err, scanning.ErrTransient) {
		return text, err
	}

	slog.Warn("Transient model failure, retrying once", "error", err, "delay", c.retryDelay)
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("waiting to retry: %w", ctx.Err())
	case <-timer.C:
	}

	return c.scanner.Invoke(ctx, c.prompt, image, mimeType)
}

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Kind classifies why an image could not be fetched
type Kind string

const (
	KindTimeout           Kind = "timeout"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindTooLarge          Kind = "too_large"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindNetworkError      Kind = "network_error"
	KindUnknown           Kind = "unknown"
)

// Default limits
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxBytes   = 10 << 20 // 10MB
	DefaultMaxRetries = 2
	DefaultBackoff    = time.Second
	DefaultBackoffMax = 8 * time.Second
)

// SupportedContentTypes lists the image formats the classifier can prepare
var SupportedContentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/heic",
	"image/heif",
}

// Error is a classified fetch failure
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Outcome is the result of one Fetch: either Bytes+ContentType or Err
type Outcome struct {
	Bytes       []byte
	ContentType string
	Err         *Error
}

// Failed reports whether the fetch produced no image
func (o Outcome) Failed() bool {
	return o.Err != nil
}

func failed(kind Kind, format string, args ...any) Outcome {
	return Outcome{Err: &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}}
}

// Options configures a Fetcher. Zero values fall back to the defaults.
type Options struct {
	Timeout    time.Duration
	MaxBytes   int64
	MaxRetries int // negative disables retries
	Backoff    time.Duration
	BackoffMax time.Duration
	UserAgent  string
}

// Fetcher downloads images with bounded retries
type Fetcher struct {
	client     *http.Client
	maxBytes   int64
	maxRetries int
	backoff    time.Duration
	backoffMax time.Duration
	userAgent  string
}

// New creates a Fetcher
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	} else if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = DefaultBackoffMax
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "merchant-validator/1.0"
	}

	return &Fetcher{
		client:     &http.Client{Timeout: opts.Timeout},
		maxBytes:   opts.MaxBytes,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		backoffMax: opts.BackoffMax,
		userAgent:  opts.UserAgent,
	}
}

// attemptResult is the outcome of a single HTTP round trip
type attemptResult struct {
	outcome    Outcome
	retryable  bool
	retryAfter time.Duration
}

// Fetch downloads rawURL. Transient failures (timeouts, 5xx, 429, connection
// errors) are retried with exponential backoff; everything else fails at once.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) Outcome {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return failed(KindUnknown, "invalid url %q", rawURL)
	}

	var last attemptResult
	attempts := 0
retry:
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			wait := f.backoffFor(attempt, last.retryAfter)
			slog.Debug("Retrying image fetch", "url", rawURL, "attempt", attempt+1, "backoff", wait, "error", last.outcome.Err)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				last = attemptResult{outcome: contextFailure(ctx.Err())}
				break retry
			case <-timer.C:
			}
		}

		attempts++
		last = f.fetchOnce(ctx, u.String())
		if last.outcome.Err == nil {
			return last.outcome
		}
		if !last.retryable || ctx.Err() != nil {
			break
		}
	}

	if attempts > 1 {
		last.outcome.Err.Detail = fmt.Sprintf("after %d attempts: %s", attempts, last.outcome.Err.Detail)
	}
	return last.outcome
}

// backoffFor doubles the base delay per attempt up to the cap. A server-provided
// Retry-After wins when present but is still capped.
func (f *Fetcher) backoffFor(attempt int, retryAfter time.Duration) time.Duration {
	wait := f.backoff * time.Duration(1<<uint(attempt-1))
	if retryAfter > 0 {
		wait = retryAfter
	}
	if wait > f.backoffMax {
		wait = f.backoffMax
	}
	return wait
}

func (f *Fetcher) fetchOnce(ctx context.Context, target string) attemptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return attemptResult{outcome: failed(KindUnknown, "creating request: %v", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused
		io.CopyN(io.Discard, resp.Body, 4<<10)
		return classifyStatus(resp)
	}

	if resp.ContentLength > f.maxBytes {
		return attemptResult{outcome: failed(KindTooLarge, "content length %d exceeds limit of %d bytes", resp.ContentLength, f.maxBytes)}
	}

	declared := mediaType(resp.Header.Get("Content-Type"))
	if declared != "" && !isGenericContentType(declared) && !isSupported(declared) {
		return attemptResult{outcome: failed(KindUnsupportedFormat, "unsupported content type %q", declared)}
	}

	limited := &io.LimitedReader{R: resp.Body, N: f.maxBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	if int64(len(data)) > f.maxBytes {
		return attemptResult{outcome: failed(KindTooLarge, "image exceeds limit of %d bytes", f.maxBytes)}
	}
	if len(data) == 0 {
		return attemptResult{outcome: failed(KindUnsupportedFormat, "empty response body")}
	}

	contentType := declared
	if contentType == "" || isGenericContentType(contentType) {
		contentType = sniff(data)
		if !isSupported(contentType) {
			return attemptResult{outcome: failed(KindUnsupportedFormat, "unsupported content type %q", contentType)}
		}
	}

	return attemptResult{outcome: Outcome{Bytes: data, ContentType: contentType}}
}

func classifyStatus(resp *http.Response) attemptResult {
	code := resp.StatusCode
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return attemptResult{outcome: failed(KindNotFound, "status %d", code)}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return attemptResult{outcome: failed(KindForbidden, "status %d", code)}
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return attemptResult{outcome: failed(KindTimeout, "status %d", code), retryable: true}
	case code == http.StatusTooManyRequests || code >= 500:
		return attemptResult{
			outcome:    failed(KindNetworkError, "status %d", code),
			retryable:  true,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		return attemptResult{outcome: failed(KindUnknown, "status %d", code)}
	}
}

func classifyTransportError(ctx context.Context, err error) attemptResult {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return attemptResult{outcome: contextFailure(ctxErr)}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return attemptResult{outcome: failed(KindTimeout, "%v", err), retryable: true}
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, io.ErrUnexpectedEOF) {
		return attemptResult{outcome: failed(KindNetworkError, "%v", err), retryable: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return attemptResult{outcome: failed(KindNetworkError, "%v", err)}
	}

	return attemptResult{outcome: failed(KindNetworkError, "%v", err), retryable: true}
}

func contextFailure(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return failed(KindTimeout, "%v", err)
	}
	return failed(KindNetworkError, "canceled: %v", err)
}

// parseRetryAfter parses a Retry-After header given in seconds
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	mt = strings.ToLower(mt)
	if mt == "image/jpg" || mt == "image/pjpeg" {
		return "image/jpeg"
	}
	return mt
}

func isGenericContentType(ct string) bool {
	return ct == "application/octet-stream" || ct == "binary/octet-stream" || ct == "application/binary"
}

func isSupported(ct string) bool {
	for _, s := range SupportedContentTypes {
		if ct == s {
			return true
		}
	}
	return false
}

// sniff identifies the format from magic bytes. http.DetectContentType
// does not know HEIC, so the ftyp box is checked first.
func sniff(data []byte) string {
	if len(data) >= 12 && string(data[4:8]) == "ftyp" {
		switch string(data[8:12]) {
		case "heic", "heix", "hevc", "mif1", "msf1":
			return "image/heic"
		case "heif":
			return "image/heif"
		}
	}
	return mediaType(http.DetectContentType(data))
}

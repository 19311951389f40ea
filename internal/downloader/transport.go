package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/famomatic/tvdl/internal/types"
)

// DefaultRequestTimeout bounds every request, body included.
const DefaultRequestTimeout = 20 * time.Second

// HTTPFetcher issues sequential GET requests with a per-request timeout.
// Failures are always one of *types.TransportError,
// *types.RequestTimeoutError or types.ErrCancelled.
type HTTPFetcher struct {
	Client  *http.Client
	Headers http.Header
	Timeout time.Duration
	// Limiter, when set, is waited on before every request.
	Limiter *rate.Limiter
}

// NewHTTPFetcher returns a fetcher with normalized defaults.
// requestsPerSecond <= 0 disables rate limiting.
func NewHTTPFetcher(client *http.Client, headers http.Header, timeout time.Duration, requestsPerSecond float64) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	f := &HTTPFetcher{
		Client:  client,
		Headers: RequestHeaders(headers),
		Timeout: timeout,
	}
	if requestsPerSecond > 0 {
		f.Limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", types.ErrCancelled, err)
			}
			return nil, &types.TransportError{URL: rawURL, Err: err}
		}
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &types.TransportError{URL: rawURL, Err: err}
	}
	applyRequestHeaders(req, f.Headers)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyRequestError(ctx, reqCtx, rawURL, timeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &types.TransportError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyRequestError(ctx, reqCtx, rawURL, timeout, err)
	}
	return body, nil
}

// classifyRequestError separates caller cancellation from request timeouts
// and other transport failures.
func classifyRequestError(parent, reqCtx context.Context, rawURL string, timeout time.Duration, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return fmt.Errorf("%w: %v", types.ErrCancelled, err)
	}
	if parent.Err() != nil || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return &types.RequestTimeoutError{URL: rawURL, Timeout: timeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &types.RequestTimeoutError{URL: rawURL, Timeout: timeout}
	}
	return &types.TransportError{URL: rawURL, Err: err}
}

// RetryConfig controls the opt-in retry decorator. The download core never
// retries on its own.
type RetryConfig struct {
	MaxRetries       int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	RetryStatusCodes []int
}

func (c RetryConfig) normalize() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 3 * time.Second
	}
	if len(c.RetryStatusCodes) == 0 {
		c.RetryStatusCodes = []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		}
	}
	return c
}

func (c RetryConfig) backoffFor(attempt int) time.Duration {
	backoff := c.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return backoff
}

func (c RetryConfig) retryable(err error) bool {
	if err == nil || errors.Is(err, types.ErrCancelled) {
		return false
	}
	var timeoutErr *types.RequestTimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var transportErr *types.TransportError
	if errors.As(err, &transportErr) {
		if transportErr.StatusCode == 0 {
			return true
		}
		for _, code := range c.RetryStatusCodes {
			if transportErr.StatusCode == code {
				return true
			}
		}
	}
	return false
}

type retryingFetcher struct {
	next Fetcher
	cfg  RetryConfig
}

// Retrying wraps next with bounded exponential backoff. Retry-After is
// honored when it asks for a longer wait. MaxRetries == 0 returns next.
func Retrying(next Fetcher, cfg RetryConfig) Fetcher {
	if cfg.MaxRetries <= 0 {
		return next
	}
	return &retryingFetcher{next: next, cfg: cfg.normalize()}
}

func (r *retryingFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		body, err := r.next.Fetch(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !r.cfg.retryable(err) || attempt == r.cfg.MaxRetries {
			return nil, err
		}
		backoff := r.cfg.backoffFor(attempt)
		var transportErr *types.TransportError
		if errors.As(err, &transportErr) && transportErr.RetryAfter > backoff {
			backoff = transportErr.RetryAfter
		}
		if err := waitBackoff(ctx, backoff); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrCancelled, err)
		}
	}
	return nil, lastErr
}

func waitBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(raw); err == nil {
		d := time.Until(when)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}

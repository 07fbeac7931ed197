package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// ErrOperationCanceled indicates that the crawl was canceled or hit its deadline.
	ErrOperationCanceled = Error("operation canceled")
	// ErrEmptyBody indicates that the server returned an empty response body. It is a
	// soft failure and eligible for retry.
	ErrEmptyBody = Error("empty response body")
)

// statusCodeError reports a non-2xx response so the retry loop can classify it.
type statusCodeError struct {
	code int
}

func (e *statusCodeError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

// fetchWithRetry requests a url up to 1+maxRetries times with exponential backoff
// between attempts. It returns the raw body on success, or the last error once the
// attempts are exhausted or a non-retryable failure occurs.
//
// Cancellation stops the loop promptly, both mid-attempt (via the request context) and
// mid-backoff.
func (c *Crawler) fetchWithRetry(ctx context.Context, source string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Deterministic exponential backoff: base, 2*base, 4*base, ...
			delay := c.backoffBase << (attempt - 1)

			c.log.Debug(ctx, "backing off before retry",
				"crawl.fetch.attempt", attempt,
				"crawl.fetch.delay", delay.String(),
			)

			select {
			case <-ctx.Done():
				return "", ErrOperationCanceled

			case <-time.After(delay):
			}
		}

		body, err := c.doFetch(ctx, source)
		if err == nil {
			return body, nil
		}

		if errors.Is(err, ErrOperationCanceled) {
			return "", ErrOperationCanceled
		}

		lastErr = err

		if !retryable(err) {
			c.log.Debug(ctx, "fetch failed permanently", "error", err)

			return "", err
		}

		c.log.Debug(ctx, "fetch failed, will retry",
			"crawl.fetch.attempt", attempt,
			"error", err,
		)
	}

	return "", lastErr
}

// doFetch performs a single GET attempt and reads the whole body.
func (c *Crawler) doFetch(ctx context.Context, source string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", ErrOperationCanceled
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		// This should not happen because the context is not nil and the url came out
		// of the frontier already resolved.
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	startTime := time.Now()
	resp, err := c.client.Do(req)
	endTime := time.Now()

	if err != nil {
		var uErr *url.Error
		if errors.As(err, &uErr) && (errors.Is(uErr.Err, context.Canceled) || errors.Is(uErr.Err, context.DeadlineExceeded)) {
			return "", ErrOperationCanceled
		}

		return "", fmt.Errorf("failed to send http request: %w", err)
	}

	defer resp.Body.Close() // nolint: errcheck

	c.log.Debug(ctx, "received http response",
		"http.status_code", resp.StatusCode,
		"http.duration", endTime.Sub(startTime).String(),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &statusCodeError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		return "", ErrEmptyBody
	}

	return string(body), nil
}

// retryable classifies a fetch error.
//
// Server-side statuses (5xx) and rate limiting (429) are transient, any other 4xx is
// permanent. Empty bodies and transport-level failures (reset, refused, timeout, dns)
// are treated as transient.
func retryable(err error) bool {
	var sErr *statusCodeError
	if errors.As(err, &sErr) {
		return sErr.code >= http.StatusInternalServerError || sErr.code == http.StatusTooManyRequests
	}

	return true
}

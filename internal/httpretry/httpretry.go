// Package httpretry implements the common external-client contract from
// §4.1: a per-call deadline, capped retries with exponential backoff on
// Transient failures only, rate-limiting via a token bucket, and tagged
// failures instead of bare errors. Generalized from the teacher's
// crawler/naver.go HTML-fetch retry loop into a transport-agnostic JSON/REST
// request runner.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/metrics"
	"github.com/harvestguard/ingestcore/internal/ratelimit"
)

// Doer is the minimal HTTP surface a Client needs, so tests can substitute a
// fake instead of a real *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	defaultMaxAttempts = 3
	baseBackoff        = 2 * time.Second
	maxBackoff         = 10 * time.Second
)

// Client wraps a Doer with the rate limit + retry + taxonomy contract one
// external client (stationclient, satclient, cidstore) needs.
type Client struct {
	name        string
	http        Doer
	limiter     *ratelimit.ClientLimiter
	logger      *zap.Logger
	maxAttempts int
}

// New builds a Client. limiter may be nil to disable rate limiting (used in
// tests); logger may be nil to fall back to zap's default production logger.
func New(name string, doer Doer, limiter *ratelimit.ClientLimiter, logger *zap.Logger) *Client {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Client{
		name:        name,
		http:        doer,
		limiter:     limiter,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
	}
}

// Do executes req, retrying on Transient failures up to maxAttempts with
// exponential backoff (capped), honouring Retry-After on 429. It returns the
// response body already read into memory (clients are expected to decode
// small JSON/CSV payloads, never stream), or a tagged *apperr.Error.
func (c *Client) Do(ctx context.Context, req *http.Request) ([]byte, int, error) {
	start := time.Now()
	backoff := baseBackoff
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			metrics.RecordClientRequest(c.name, "cancelled", time.Since(start))
			return nil, 0, apperr.Wrap(apperr.Cancelled, "context done before request", ctx.Err())
		default:
		}

		if c.limiter != nil {
			waitStart := time.Now()
			if err := c.limiter.Wait(ctx); err != nil {
				metrics.RecordClientRequest(c.name, "rate_limited", time.Since(start))
				metrics.RecordClientError(c.name, string(apperr.RateLimited))
				return nil, 0, apperr.Wrap(apperr.RateLimited, "rate limit wait exceeded deadline", err)
			}
			metrics.RecordRateLimitWait(c.name, time.Since(waitStart))
		}

		body, status, retryAfter, err := c.attempt(req)
		if err == nil {
			metrics.RecordClientRequest(c.name, "success", time.Since(start))
			return body, status, nil
		}

		lastErr = err
		kind := apperr.KindOf(err)
		metrics.RecordClientError(c.name, string(kind))

		if !apperr.Retryable(kind) || attempt == c.maxAttempts {
			break
		}

		delay := backoff
		if kind == apperr.RateLimited && retryAfter > 0 {
			delay = retryAfter
		}

		c.logger.Warn("retrying external client call",
			zap.String("client", c.name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, 0, apperr.Wrap(apperr.Cancelled, "context done during backoff", ctx.Err())
		case <-time.After(delay):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	metrics.RecordClientRequest(c.name, "failure", time.Since(start))
	return nil, 0, lastErr
}

func (c *Client) attempt(req *http.Request) ([]byte, int, time.Duration, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, 0, apperr.Wrap(apperr.Transient, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, 0, apperr.Wrap(apperr.Transient, "failed reading response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		ra := parseRetryAfterHeader(resp.Header.Get("Retry-After"))
		return body, resp.StatusCode, ra, apperr.New(apperr.RateLimited, "upstream rate limited the request")
	case resp.StatusCode >= 500:
		return body, resp.StatusCode, 0, apperr.New(apperr.Transient, fmt.Sprintf("upstream returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return body, resp.StatusCode, 0, apperr.New(apperr.Permanent, fmt.Sprintf("upstream returned %d", resp.StatusCode))
	default:
		return body, resp.StatusCode, 0, nil
	}
}

// parseRetryAfterHeader converts an HTTP Retry-After header value (seconds or
// HTTP-date) into a wait duration, returning 0 when absent or unparseable so
// the caller falls back to exponential backoff.
func parseRetryAfterHeader(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

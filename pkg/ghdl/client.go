// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"context"
	"io"
	"net/http"
	"time"
)

const maxRetryAttempts = 5

// httpDoer is the minimal interface this package needs from an HTTP
// client, so tests can substitute a fake transport.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// buildHTTPClient creates an HTTP client with sensible connection-pool
// defaults.
func buildHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr}
}

// addAuth adds bearer-token authentication and a user-agent header to req.
func addAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}
	req.Header.Set("User-Agent", "ghdl/1")
}

// engineClient bundles the HTTP transport with the shared rate-limit
// tracker and response cache that every forge call is routed through.
type engineClient struct {
	http    httpDoer
	token   string
	cache   *responseCache
	noCache bool
	rl      *RateLimitState
	emit    func(ProgressEvent)
	now     func() time.Time
}

func (c *engineClient) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// getJSONCached performs a cached, retried, rate-limit-aware GET. Per
// §4.3, the cache is consulted before any network call when caching is
// enabled; a fresh hit issues no request at all.
func (c *engineClient) getJSONCached(ctx context.Context, url string) ([]byte, error) {
	if !c.noCache {
		if cr, ok := c.cache.Get(url, c.clock()); ok {
			return cr.Body, nil
		}
	}

	resp, err := c.doRetried(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		addAuth(req, c.token)
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapErr(KindNetworkError, err, "read response body for %s", url)
	}

	if !c.noCache {
		cr := CachedResponse{
			URL:                   url,
			Body:                  body,
			ValidatorETag:         resp.Header.Get("ETag"),
			ValidatorLastModified: resp.Header.Get("Last-Modified"),
			StoredAtEpochS:        c.clock().Unix(),
		}
		if err := c.cache.Put(cr); err != nil && c.emit != nil {
			c.emit(ProgressEvent{Level: "warn", Event: "cache_write_failed", Message: err.Error()})
		}
	}

	return body, nil
}

// doRetried performs the rate-limit-aware retry loop described in §4.4
// and §7 for a request whose only acceptable outcome is a 2xx status.
func (c *engineClient) doRetried(ctx context.Context, reqFn func() (*http.Request, error)) (*http.Response, error) {
	isSuccess := func(status int) bool { return status >= 200 && status < 300 }
	return c.doRetriedGeneric(ctx, reqFn, isSuccess, c.emit)
}

// doRetriedGeneric is doRetried parametrized by a caller-supplied success
// predicate, so the file downloader can additionally accept 206 Partial
// Content when resuming. Transport-level errors propagate immediately as
// NetworkError (never retried); responses isSuccess rejects are retried
// per backoffFor up to maxRetryAttempts, after which the response body
// is read and surfaced as a RemoteError/RateLimitedError. reqFn must
// build a fresh request on every call since a request's body reader
// cannot be replayed.
func (c *engineClient) doRetriedGeneric(ctx context.Context, reqFn func() (*http.Request, error), isSuccess func(int) bool, emit func(ProgressEvent)) (*http.Response, error) {
	var lastResp *http.Response
	var lastBody []byte
	var lastURL string
	var wasRateLimited bool

	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		req, err := reqFn()
		if err != nil {
			return nil, wrapErr(KindInvalidRequest, err, "build request")
		}
		lastURL = req.URL.String()

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, wrapErr(KindNetworkError, err, "request to %s", lastURL)
		}

		if c.rl != nil {
			c.rl.observe(resp.Header, emit)
		}

		if isSuccess(resp.StatusCode) {
			return resp, nil
		}

		d, retryable := backoffFor(resp.StatusCode, resp.Header, c.clock())
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastResp, lastBody = resp, body
		wasRateLimited = retryable

		if retryable && attempt < maxRetryAttempts {
			if emit != nil {
				emit(ProgressEvent{Level: "debug", Event: "retry", Message: "backing off before retry", Path: lastURL})
			}
			if !sleepCtx(ctx, d) {
				return nil, wrapErr(KindCancelled, ctx.Err(), "canceled during backoff")
			}
			continue
		}
		break
	}

	// backoffFor is the single authority on what counts as rate limiting
	// (e.g. a 403 with remaining quota left is an authorization failure,
	// not exhaustion): only its retryable verdict on the final attempt
	// earns a RateLimitedError, never the bare status code.
	if wasRateLimited {
		reset, has := parseInt64Header(lastResp.Header, "x-ratelimit-reset")
		return nil, &RateLimitedError{
			ResetEpochS: reset,
			HasReset:    has,
			Cause: &RemoteError{
				StatusCode: lastResp.StatusCode,
				Status:     lastResp.Status,
				Body:       string(lastBody),
				URL:        lastURL,
			},
		}
	}
	return nil, &RemoteError{
		StatusCode: lastResp.StatusCode,
		Status:     lastResp.Status,
		Body:       string(lastBody),
		URL:        lastURL,
	}
}

// sleepCtx waits for d or returns false if ctx is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

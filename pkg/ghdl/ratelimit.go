// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// snapshotFromHeaders builds a RateLimitSnapshot from the four
// rate-limit headers, per §4.4. ok is false if all fields are absent.
func snapshotFromHeaders(h http.Header) (snap RateLimitSnapshot, ok bool) {
	if v, has := parseIntHeader(h, "x-ratelimit-limit"); has {
		snap.Limit, snap.HasLimit = v, true
		ok = true
	}
	if v, has := parseIntHeader(h, "x-ratelimit-remaining"); has {
		snap.Remaining, snap.HasRemaining = v, true
		ok = true
	}
	if v, has := parseIntHeader(h, "x-ratelimit-used"); has {
		snap.Used, snap.HasUsed = v, true
		ok = true
	}
	if v, has := parseInt64Header(h, "x-ratelimit-reset"); has {
		snap.ResetEpochS, snap.HasReset = v, true
		ok = true
	}
	return snap, ok
}

func parseIntHeader(h http.Header, key string) (int, bool) {
	v := h.Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseInt64Header(h http.Header, key string) (int64, bool) {
	v := h.Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// observe updates the tracker from one response's headers and reports a
// warning ProgressEvent when the remaining quota is at or below the warn
// threshold and lower than at the previous warning, so each new low
// under the threshold warns once. emit may be nil.
func (s *RateLimitState) observe(h http.Header, emit func(ProgressEvent)) {
	snap, ok := snapshotFromHeaders(h)
	if !ok {
		return
	}

	s.mu.Lock()
	changed := s.lastSnapshot == nil || *s.lastSnapshot != snap
	s.lastSnapshot = &snap

	if snap.HasRemaining {
		if !s.hasLowestRemainingSeen || snap.Remaining < s.lowestRemainingSeen {
			s.lowestRemainingSeen = snap.Remaining
			s.hasLowestRemainingSeen = true
		}
	}

	var warnMsg string
	if snap.HasRemaining && snap.HasLimit {
		threshold := clampInt(int(math.Ceil(float64(snap.Limit)*0.10)), 50, snap.Limit)
		if snap.Remaining <= threshold && (!s.hasLastWarnedAt || snap.Remaining < s.lastWarnedAtRemaining) {
			s.lastWarnedAtRemaining = snap.Remaining
			s.hasLastWarnedAt = true
			warnMsg = "rate limit running low"
		}
	}
	s.mu.Unlock()

	if emit == nil {
		return
	}
	if changed {
		emit(ProgressEvent{Level: "debug", Event: "ratelimit", Message: "rate limit snapshot updated"})
	}
	if warnMsg != "" {
		emit(ProgressEvent{Level: "warn", Event: "ratelimit_warn", Message: warnMsg})
	}
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// backoffFor is the pure function over (status, headers) described in
// §4.4. ok is false when the response should not be retried via backoff
// (the caller treats it as a terminal error instead).
func backoffFor(status int, h http.Header, now time.Time) (d time.Duration, ok bool) {
	retryAfter, hasRetryAfter := parseRetryAfter(h, now)

	switch {
	case status == 429:
		if hasRetryAfter {
			return retryAfter, true
		}
		return 0, false

	case status == 403:
		remaining, hasRemaining := parseIntHeader(h, "x-ratelimit-remaining")
		if hasRemaining && remaining > 0 {
			// Not rate-limiting: authorization or other 403.
			return 0, false
		}
		if hasRetryAfter {
			return retryAfter, true
		}
		if reset, has := parseInt64Header(h, "x-ratelimit-reset"); has {
			d := time.Duration(reset-now.Unix())*time.Second + time.Second
			if d < time.Second {
				d = time.Second
			}
			return d, true
		}
		return 0, false

	default:
		// A Retry-After on an otherwise successful/other response is
		// honored too: some forges attach it to abuse-detection
		// warnings without a non-2xx status.
		if hasRetryAfter && status < 400 {
			return retryAfter, true
		}
		return 0, false
	}
}

func parseRetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

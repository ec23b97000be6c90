// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"net/http"
	"strconv"
	"testing"
	"time"
)

func headerWith(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestBackoffFor(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name       string
		status     int
		h          http.Header
		wantOK     bool
		wantAtLeast time.Duration
	}{
		{
			name:   "429 with Retry-After retries",
			status: 429,
			h:      headerWith("Retry-After", "5"),
			wantOK: true, wantAtLeast: 5 * time.Second,
		},
		{
			name:   "429 without Retry-After is terminal",
			status: 429,
			h:      http.Header{},
			wantOK: false,
		},
		{
			name:   "403 with nonzero remaining is not rate limiting",
			status: 403,
			h:      headerWith("x-ratelimit-remaining", "10"),
			wantOK: false,
		},
		{
			name:   "403 with zero remaining and reset header retries",
			status: 403,
			h:      headerWith("x-ratelimit-remaining", "0", "x-ratelimit-reset", strconv.FormatInt(now.Add(3*time.Second).Unix(), 10)),
			wantOK: true, wantAtLeast: time.Second,
		},
		{
			name:   "500 is not retried by backoffFor",
			status: 500,
			h:      http.Header{},
			wantOK: false,
		},
		{
			name:   "2xx with Retry-After is honored",
			status: 202,
			h:      headerWith("Retry-After", "2"),
			wantOK: true, wantAtLeast: 2 * time.Second,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, ok := backoffFor(tc.status, tc.h, now)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v (d=%v)", ok, tc.wantOK, d)
			}
			if ok && d < tc.wantAtLeast {
				t.Errorf("d = %v, want at least %v", d, tc.wantAtLeast)
			}
		})
	}
}

func TestRateLimitStateObserve(t *testing.T) {
	var s RateLimitState
	var events []ProgressEvent
	emit := func(ev ProgressEvent) { events = append(events, ev) }

	h := headerWith("x-ratelimit-limit", "100", "x-ratelimit-remaining", "5", "x-ratelimit-used", "95", "x-ratelimit-reset", "1700000000")
	s.observe(h, emit)

	var sawWarn bool
	for _, ev := range events {
		if ev.Event == "ratelimit_warn" {
			sawWarn = true
		}
	}
	if !sawWarn {
		t.Errorf("expected a ratelimit_warn event when remaining is low, got %+v", events)
	}

	events = nil
	s.observe(h, emit)
	for _, ev := range events {
		if ev.Event == "ratelimit_warn" {
			t.Errorf("did not expect a repeated warning for an unchanged snapshot, got %+v", events)
		}
	}
}

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"path/filepath"
	"testing"
	"time"
)

func TestResponseCacheGetPut(t *testing.T) {
	dir := t.TempDir()
	c := newResponseCache(dir)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("missing entry is absent", func(t *testing.T) {
		if _, ok := c.Get("https://api.example/repos/o/r", now); ok {
			t.Fatalf("expected miss for unseeded key")
		}
	})

	t.Run("fresh entry hits", func(t *testing.T) {
		cr := CachedResponse{URL: "https://api.example/repos/o/r", Body: []byte(`{"ok":true}`), StoredAtEpochS: now.Unix()}
		if err := c.Put(cr); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, ok := c.Get(cr.URL, now.Add(time.Minute))
		if !ok {
			t.Fatalf("expected hit")
		}
		if string(got.Body) != string(cr.Body) {
			t.Errorf("got body %q, want %q", got.Body, cr.Body)
		}
	})

	t.Run("expired entry is absent", func(t *testing.T) {
		cr := CachedResponse{URL: "https://api.example/repos/o/stale", Body: []byte("old"), StoredAtEpochS: now.Unix()}
		if err := c.Put(cr); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if _, ok := c.Get(cr.URL, now.Add(2*defaultCacheTTL)); ok {
			t.Fatalf("expected expired entry to be reported absent")
		}
	})

	t.Run("Put is atomic, leaving no temp file behind", func(t *testing.T) {
		cr := CachedResponse{URL: "https://api.example/repos/o/atomic", Body: []byte("x"), StoredAtEpochS: now.Unix()}
		if err := c.Put(cr); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if _, err := filepath.Glob(filepath.Join(dir, "*.tmp")); err != nil {
			t.Fatalf("glob: %v", err)
		}
		matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
		if len(matches) != 0 {
			t.Errorf("expected no leftover temp files, found %v", matches)
		}
	})
}

func TestCacheRoot(t *testing.T) {
	t.Run("explicit root is kept as-is", func(t *testing.T) {
		if got := CacheRoot("/tmp/custom-ghdl"); got != "/tmp/custom-ghdl" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("empty root falls back to the platform default", func(t *testing.T) {
		if got := CacheRoot(""); got == "" {
			t.Errorf("expected a non-empty default cache root")
		}
	})
}

func TestClearAndStatCache(t *testing.T) {
	root := t.TempDir()
	c := newResponseCache(responsesDir(root))
	if err := c.Put(CachedResponse{URL: "https://api.example/a", Body: []byte("abcdef"), StoredAtEpochS: time.Now().Unix()}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	stats := StatCache(root)
	if len(stats) != 3 {
		t.Fatalf("expected 3 subtree stats, got %d", len(stats))
	}
	var respStat CacheStat
	for _, s := range stats {
		if s.Name == "responses" {
			respStat = s
		}
	}
	if respStat.Entries != 1 {
		t.Errorf("responses entries = %d, want 1", respStat.Entries)
	}
	if respStat.Bytes == 0 {
		t.Errorf("responses bytes = 0, want nonzero")
	}

	freed, err := ClearCache(root)
	if err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if freed == 0 {
		t.Errorf("expected nonzero bytes freed")
	}

	after := StatCache(root)
	for _, s := range after {
		if s.Entries != 0 {
			t.Errorf("subtree %q still has %d entries after clear", s.Name, s.Entries)
		}
	}
}

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

// hostRewritingClient forwards every request to a fixed test server
// regardless of the scheme/host baked into the request's URL, so the
// forge adapter's hardcoded "https://<host>/..." URL construction can be
// exercised against a local fake.
type hostRewritingClient struct {
	target *url.URL
	client *http.Client
}

func (c *hostRewritingClient) Do(req *http.Request) (*http.Response, error) {
	u := *req.URL
	u.Scheme = c.target.Scheme
	u.Host = c.target.Host
	req2 := req.Clone(req.Context())
	req2.URL = &u
	req2.Host = c.target.Host
	return c.client.Do(req2)
}

func TestGetEndToEndAPIStrategy(t *testing.T) {
	const fileBody = "package main\n"

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/repo/contents/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"name":"main.go","path":"main.go","type":"file","size":%d,"download_url":"https://raw.example/owner/repo/main/main.go"}]`, len(fileBody))
	})
	mux.HandleFunc("/repos/owner/repo/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"sha":"abc","truncated":false,"tree":[{"path":"main.go","type":"blob","size":%d,"sha":"def"}]}`, len(fileBody))
	})
	mux.HandleFunc("/owner/repo/main/main.go", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fileBody)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}

	outDir := t.TempDir()
	cacheDir := t.TempDir()
	cfg := Settings{
		OutputDir:    outDir,
		Parallel:     2,
		StrategyPref: StrategyAPI,
		NoCache:      true,
		CacheRoot:    cacheDir,
		HTTPClient:   &hostRewritingClient{target: target, client: srv.Client()},
	}

	var events []ProgressEvent
	results, err := Get(context.Background(), []string{"https://github.com/owner/repo/tree/main"}, cfg, func(ev ProgressEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	res := results[0]
	if res.StrategyUsed != StrategyAPI {
		t.Errorf("StrategyUsed = %s, want %s", res.StrategyUsed, StrategyAPI)
	}
	if res.FilesWritten != 1 {
		t.Errorf("FilesWritten = %d, want 1", res.FilesWritten)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "main.go"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != fileBody {
		t.Errorf("got %q, want %q", got, fileBody)
	}

	var sawStart, sawDone bool
	for _, ev := range events {
		if ev.Event == "url_start" {
			sawStart = true
		}
		if ev.Event == "url_done" {
			sawDone = true
		}
	}
	if !sawStart || !sawDone {
		t.Errorf("expected url_start and url_done events, got %+v", events)
	}
}

func TestGetRejectsMalformedURL(t *testing.T) {
	cfg := DefaultSettings()
	cfg.CacheRoot = t.TempDir()
	_, err := Get(context.Background(), []string{"not-a-valid-repo-url"}, cfg, nil)
	if err == nil {
		t.Fatal("expected an error for a malformed URL")
	}
}

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestClient(h http.Handler) (*engineClient, *httptest.Server) {
	srv := httptest.NewServer(h)
	return &engineClient{http: srv.Client(), cache: newResponseCache(filepath.Join(os.TempDir(), "ghdl-test-unused"))}, srv
}

func TestDownloadFileFreshDownload(t *testing.T) {
	const body = "hello, world"
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			t.Errorf("did not expect a Range header on a fresh download")
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	task := DownloadTask{
		Source:     ContentItem{Path: "a.txt", DirectURL: srv.URL + "/a.txt"},
		TargetPath: filepath.Join(dir, "a.txt"),
		Size:       int64(len(body)),
		HasSize:    true,
	}
	if err := downloadFile(context.Background(), client, true, task, nil); err != nil {
		t.Fatalf("downloadFile: %v", err)
	}
	got, err := os.ReadFile(task.TargetPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != body {
		t.Errorf("got %q, want %q", got, body)
	}
}

func TestDownloadFileResumesFromPartial(t *testing.T) {
	const full = "0123456789ABCDEF"
	const already = "01234"

	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng == "" {
			t.Errorf("expected a Range header when a partial file is present")
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", len(already), len(full)-1, len(full)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(full[len(already):]))
	}))
	defer srv.Close()

	dir := t.TempDir()
	task := DownloadTask{
		Source:     ContentItem{Path: "b.bin", DirectURL: srv.URL + "/b.bin"},
		TargetPath: filepath.Join(dir, "b.bin"),
		Size:       int64(len(full)),
		HasSize:    true,
	}
	if err := os.WriteFile(task.TargetPath+".part", []byte(already), 0o644); err != nil {
		t.Fatalf("seed partial: %v", err)
	}

	if err := downloadFile(context.Background(), client, false, task, nil); err != nil {
		t.Fatalf("downloadFile: %v", err)
	}
	got, err := os.ReadFile(task.TargetPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != full {
		t.Errorf("got %q, want %q", got, full)
	}
}

func TestDownloadFileServerIgnoresRangeAndRestarts(t *testing.T) {
	const full = "ABCDEFGHIJ"
	const stalePartial = "AB"

	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Server doesn't honor Range and always returns the full body with 200.
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(full))
	}))
	defer srv.Close()

	dir := t.TempDir()
	task := DownloadTask{
		Source:     ContentItem{Path: "c.txt", DirectURL: srv.URL + "/c.txt"},
		TargetPath: filepath.Join(dir, "c.txt"),
		Size:       int64(len(full)),
		HasSize:    true,
	}
	if err := os.WriteFile(task.TargetPath+".part", []byte(stalePartial), 0o644); err != nil {
		t.Fatalf("seed partial: %v", err)
	}

	if err := downloadFile(context.Background(), client, false, task, nil); err != nil {
		t.Fatalf("downloadFile: %v", err)
	}
	got, err := os.ReadFile(task.TargetPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != full {
		t.Errorf("got %q, want %q (server-restart path should discard the stale partial)", got, full)
	}
}

func TestDownloadFileDiscardsCompleteOrOverrunPartial(t *testing.T) {
	const full = "short"
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			t.Errorf("a complete partial should not trigger a resume request")
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(full))
	}))
	defer srv.Close()

	dir := t.TempDir()
	task := DownloadTask{
		Source:     ContentItem{Path: "d.txt", DirectURL: srv.URL + "/d.txt"},
		TargetPath: filepath.Join(dir, "d.txt"),
		Size:       int64(len(full)),
		HasSize:    true,
	}
	// Partial already holds more bytes than the known size.
	if err := os.WriteFile(task.TargetPath+".part", []byte(full+"EXTRA"), 0o644); err != nil {
		t.Fatalf("seed partial: %v", err)
	}

	if err := downloadFile(context.Background(), client, false, task, nil); err != nil {
		t.Fatalf("downloadFile: %v", err)
	}
	got, err := os.ReadFile(task.TargetPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != full {
		t.Errorf("got %q, want %q", got, full)
	}
}

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import "testing"

func TestSafeRelPath(t *testing.T) {
	cases := []struct {
		name     string
		basePath string
		item     ContentItem
		want     string
		wantErr  bool
	}{
		{
			name:     "strips base prefix",
			basePath: "src/pkg",
			item:     ContentItem{Path: "src/pkg/sub/a.go", Name: "a.go"},
			want:     "sub/a.go",
		},
		{
			name:     "empty base keeps full path",
			basePath: "",
			item:     ContentItem{Path: "README.md", Name: "README.md"},
			want:     "README.md",
		},
		{
			name:     "parent-directory component rejected",
			basePath: "src",
			item:     ContentItem{Path: "src/../../etc/passwd", Name: "passwd"},
			wantErr:  true,
		},
		{
			name:     "windows drive letter component rejected",
			basePath: "",
			item:     ContentItem{Path: "C:/Windows/System32/evil.dll", Name: "evil.dll"},
			wantErr:  true,
		},
		{
			name:     "falls back to the full forge path when stripping fails",
			basePath: "other/path",
			item:     ContentItem{Path: "unrelated/dir/file.txt", Name: "file.txt"},
			want:     "unrelated/dir/file.txt",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SafeRelPath(tc.basePath, tc.item)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveUnderRoot(t *testing.T) {
	t.Run("descendant path resolves", func(t *testing.T) {
		got, err := ResolveUnderRoot("/out", "sub/a.go")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "/out/sub/a.go" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("root itself resolves", func(t *testing.T) {
		got, err := ResolveUnderRoot("/out", ".")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "/out" {
			t.Errorf("got %q", got)
		}
	})
}

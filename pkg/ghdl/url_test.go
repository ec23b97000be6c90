// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import "testing"

func TestParseRequestSpec(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		wantErr bool
		owner   string
		repo    string
		branch  string
		path    string
		kind    Kind
	}{
		{
			name:   "tree root",
			url:    "https://github.com/owner/repo/tree/main",
			owner:  "owner",
			repo:   "repo",
			branch: "main",
			path:   "",
			kind:   Tree,
		},
		{
			name:   "tree with nested path",
			url:    "https://github.com/owner/repo/tree/main/src/pkg",
			owner:  "owner",
			repo:   "repo",
			branch: "main",
			path:   "src/pkg",
			kind:   Tree,
		},
		{
			name:   "blob file",
			url:    "https://github.com/owner/repo/blob/main/README.md",
			owner:  "owner",
			repo:   "repo",
			branch: "main",
			path:   "README.md",
			kind:   Blob,
		},
		{
			name:   "blob with empty path promotes to tree",
			url:    "https://github.com/owner/repo/blob/main",
			owner:  "owner",
			repo:   "repo",
			branch: "main",
			path:   "",
			kind:   Tree,
		},
		{
			name:    "too few segments",
			url:     "https://github.com/owner/repo",
			wantErr: true,
		},
		{
			name:    "invalid kind segment",
			url:     "https://github.com/owner/repo/commits/main",
			wantErr: true,
		},
		{
			name:    "missing owner",
			url:     "https://github.com//repo/tree/main",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec, err := ParseRequestSpec(tc.url)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got spec %+v", spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if spec.Owner != tc.owner || spec.Repo != tc.repo || spec.Branch != tc.branch || spec.Path != tc.path || spec.Kind != tc.kind {
				t.Errorf("got %+v, want owner=%s repo=%s branch=%s path=%s kind=%s", spec, tc.owner, tc.repo, tc.branch, tc.path, tc.kind)
			}
		})
	}
}

func TestPlanLayout(t *testing.T) {
	t.Run("single file request", func(t *testing.T) {
		spec := RequestSpec{Path: "docs/guide.md", Kind: Blob}
		top := []ContentItem{{Path: "docs/guide.md", Name: "guide.md", Type: ItemFile}}
		base, out := PlanLayout(spec, top)
		if base != "docs" {
			t.Errorf("basePath = %q, want %q", base, "docs")
		}
		if out != "." {
			t.Errorf("defaultOutputDir = %q, want %q", out, ".")
		}
	})

	t.Run("directory request names the output after the last segment", func(t *testing.T) {
		spec := RequestSpec{Path: "src/pkg"}
		top := []ContentItem{{Path: "src/pkg/a.go", Type: ItemFile}, {Path: "src/pkg/sub", Type: ItemDir}}
		base, out := PlanLayout(spec, top)
		if base != "src/pkg" {
			t.Errorf("basePath = %q, want %q", base, "src/pkg")
		}
		if out != "pkg" {
			t.Errorf("defaultOutputDir = %q, want %q", out, "pkg")
		}
	})

	t.Run("whole-repo request outputs to current directory", func(t *testing.T) {
		spec := RequestSpec{Path: ""}
		top := []ContentItem{{Path: "README.md", Type: ItemFile}}
		_, out := PlanLayout(spec, top)
		if out != "." {
			t.Errorf("defaultOutputDir = %q, want %q", out, ".")
		}
	})

	t.Run("trailing slash request outputs to current directory", func(t *testing.T) {
		spec := RequestSpec{Path: "src", HasTrailingSlash: true}
		top := []ContentItem{{Path: "src/a.go", Type: ItemFile}}
		_, out := PlanLayout(spec, top)
		if out != "." {
			t.Errorf("defaultOutputDir = %q, want %q", out, ".")
		}
	})
}

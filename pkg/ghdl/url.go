// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"net/url"
	"strings"
)

// ParseRequestSpec decodes a forge URL of the form
//
//	https://<host>/<owner>/<repo>/{tree|blob}/<branch>/<path...>
//
// into a RequestSpec. It fails with KindInvalidRequest if the URL has
// fewer than four path segments (owner, repo, tree-or-blob, branch) or
// the third segment is not "tree" or
// "blob". A Blob request with an empty path is promoted to Tree (a
// blob URL always names a directory-shaped root in that case, mirroring
// the forge's own behavior for a stripped-down blob URL).
func ParseRequestSpec(raw string) (RequestSpec, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return RequestSpec{}, wrapErr(KindInvalidRequest, err, "malformed URL %q", raw)
	}

	trimmed := strings.Trim(u.Path, "/")
	hasTrailingSlash := strings.HasSuffix(u.Path, "/") && trimmed != ""

	segs := strings.Split(trimmed, "/")
	if len(segs) < 4 {
		return RequestSpec{}, newErr(KindInvalidRequest, "URL %q has too few path segments (need owner/repo/tree-or-blob/branch[/path...])", raw)
	}

	owner, repo, kindSeg, branch := segs[0], segs[1], segs[2], segs[3]
	if owner == "" || repo == "" {
		return RequestSpec{}, newErr(KindInvalidRequest, "URL %q is missing owner or repo", raw)
	}

	var kind Kind
	switch kindSeg {
	case "tree":
		kind = Tree
	case "blob":
		kind = Blob
	default:
		return RequestSpec{}, newErr(KindInvalidRequest, "URL %q has invalid segment %q (expected \"tree\" or \"blob\")", raw, kindSeg)
	}

	path := ""
	if len(segs) > 4 {
		path = strings.Join(segs[4:], "/")
	}
	path = normalizeForgePath(path)

	if kind == Blob && path == "" {
		kind = Tree
	}

	return RequestSpec{
		Owner:            owner,
		Repo:             repo,
		Branch:           branch,
		Path:             path,
		HasTrailingSlash: hasTrailingSlash,
		Kind:             kind,
	}, nil
}

// normalizeForgePath normalizes backslashes to forward slashes and strips
// leading/trailing slashes, matching §4.1's path normalization contract.
func normalizeForgePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.Trim(p, "/")
}

// PlanLayout computes (base_path, default_output_dir) from the request
// spec and the top-level listing observed at that path, per §4.1.
func PlanLayout(spec RequestSpec, topLevel []ContentItem) (basePath, defaultOutputDir string) {
	if len(topLevel) == 1 && topLevel[0].Type == ItemFile {
		// Single-file request.
		file := topLevel[0]
		basePath = parentOf(file.Path)
		return basePath, "."
	}

	basePath = spec.Path
	if spec.Path == "" || spec.HasTrailingSlash {
		return basePath, "."
	}
	return basePath, lastComponent(spec.Path)
}

func parentOf(p string) string {
	p = normalizeForgePath(p)
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

func lastComponent(p string) string {
	p = normalizeForgePath(p)
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return p
	}
	return p[i+1:]
}

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// contentsEntry mirrors one element of the forge's contents API response,
// or the single-object shape returned for a direct file request.
type contentsEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"` // "file","dir","symlink","submodule"
	Size        int64  `json:"size"`
	SHA         string `json:"sha"`
	URL         string `json:"url"`
	DownloadURL string `json:"download_url"`
}

func (e contentsEntry) toContentItem() ContentItem {
	it := ContentItem{
		Name:        e.Name,
		Path:        e.Path,
		Size:        e.Size,
		HasSize:     true,
		FetchURL:    e.URL,
		DirectURL:   e.DownloadURL,
		ContentHash: e.SHA,
	}
	switch e.Type {
	case "file":
		it.Type = ItemFile
	case "dir":
		it.Type = ItemDir
	case "symlink":
		it.Type = ItemSymlink
	case "submodule":
		it.Type = ItemSubmodule
	default:
		it.Type = ItemOther
	}
	return it
}

// treeEntry mirrors one element of the git trees API's "tree" array.
type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "blob","tree","commit"
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

type treeResponse struct {
	SHA       string      `json:"sha"`
	Tree      []treeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

// forgeAdapter implements the two REST operations of §4.5.
type forgeAdapter struct {
	client  *engineClient
	apiHost string
}

// ListContents fetches the directory (or single-file) listing at path on
// branch. The forge returns either a JSON array (directory) or a single
// object (file); both shapes are accepted.
func (f *forgeAdapter) ListContents(ctx context.Context, owner, repo, branch, path string) ([]ContentItem, error) {
	u := fmt.Sprintf("https://%s/repos/%s/%s/contents/%s?ref=%s",
		f.apiHost, url.PathEscape(owner), url.PathEscape(repo), pathEscapeAll(path), url.QueryEscape(branch))

	body, err := f.client.getJSONCached(ctx, u)
	if err != nil {
		return nil, err
	}

	var arr []contentsEntry
	if err := json.Unmarshal(body, &arr); err == nil {
		items := make([]ContentItem, 0, len(arr))
		for _, e := range arr {
			items = append(items, e.toContentItem())
		}
		return items, nil
	}

	var single contentsEntry
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, wrapErr(KindRemoteError, err, "decode contents response for %s", u)
	}
	return []ContentItem{single.toContentItem()}, nil
}

// EnumerateTree fetches the full recursive blob listing at ref (a branch,
// optionally suffixed with ":path" to scope the tree), per §4.5. If the
// forge marks the result truncated, a warning is emitted and processing
// continues with what was received.
func (f *forgeAdapter) EnumerateTree(ctx context.Context, owner, repo, ref string) ([]ContentItem, error) {
	u := fmt.Sprintf("https://%s/repos/%s/%s/git/trees/%s?recursive=1",
		f.apiHost, url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(ref))

	body, err := f.client.getJSONCached(ctx, u)
	if err != nil {
		return nil, err
	}

	var tr treeResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, wrapErr(KindRemoteError, err, "decode tree response for %s", u)
	}

	if tr.Truncated && f.client.emit != nil {
		f.client.emit(ProgressEvent{Level: "warn", Event: "tree_truncated", Message: "tree enumeration was truncated by the forge; continuing with partial results"})
	}

	items := make([]ContentItem, 0, len(tr.Tree))
	for _, e := range tr.Tree {
		if e.Type != "blob" {
			continue
		}
		items = append(items, ContentItem{
			Name:        lastComponent(e.Path),
			Path:        e.Path,
			Size:        e.Size,
			HasSize:     true,
			Type:        ItemFile,
			ContentHash: e.SHA,
		})
	}
	return items, nil
}

// extractDefaultBranch pulls "default_branch" out of a repository-info
// response body.
func extractDefaultBranch(body []byte) (string, error) {
	var repo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := json.Unmarshal(body, &repo); err != nil {
		return "", wrapErr(KindRemoteError, err, "decode repository response")
	}
	if repo.DefaultBranch == "" {
		return "", newErr(KindRemoteError, "repository response missing default_branch")
	}
	return repo.DefaultBranch, nil
}

func pathEscapeAll(p string) string {
	if p == "" {
		return ""
	}
	segs := strings.Split(p, "/")
	for i := range segs {
		segs[i] = url.PathEscape(segs[i])
	}
	return strings.Join(segs, "/")
}

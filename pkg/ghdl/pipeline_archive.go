// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// runArchivePipeline implements §4.6.3: download the branch's zip
// snapshot (with on-disk reuse), extract it with a sanitizer gate, and
// copy out the requested subtree.
func runArchivePipeline(ctx context.Context, eng *engine, spec RequestSpec) (Result, error) {
	branch := spec.Branch
	if branch == "" {
		b, err := eng.resolveBranch(ctx, spec)
		if err != nil {
			return Result{}, err
		}
		branch = b
	}

	zipPath := archiveCachePath(cacheRootOrDefault(eng.cfg), spec.Owner, spec.Repo, branch)
	if err := ensureArchive(ctx, eng, spec, branch, zipPath); err != nil {
		return Result{}, err
	}

	extractDir := zipPath + ".d"
	topDir, err := extractArchive(zipPath, extractDir, eng.emit)
	if err != nil {
		return Result{}, err
	}

	srcRoot := filepath.Join(extractDir, topDir, filepath.FromSlash(spec.Path))
	if spec.Kind == Blob {
		if fi, err := os.Stat(srcRoot); err != nil || fi.IsDir() {
			return Result{}, newErr(KindInvalidRequest, "path %q is not a file in %s/%s@%s", spec.Path, spec.Owner, spec.Repo, branch)
		}
	}

	outputDir := eng.cfg.OutputDir
	if outputDir == "" {
		if spec.Path == "" || spec.HasTrailingSlash {
			outputDir = "."
		} else {
			outputDir = lastComponent(spec.Path)
		}
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{}, wrapErr(KindNetworkError, err, "create output dir %q", outputDir)
	}

	tasks, err := walkWorktree(eng, srcRoot, outputDir)
	if err != nil {
		return Result{}, err
	}
	if len(tasks) == 0 {
		return Result{}, newErr(KindInvalidRequest, "no content at path %q on %s/%s@%s", spec.Path, spec.Owner, spec.Repo, branch)
	}

	targets := make([]string, len(tasks))
	for i, t := range tasks {
		targets[i] = t.TargetPath
	}
	if err := checkOverwrite(targets, eng.cfg.Force, eng.cfg.Stdin, eng.cfg.Stdout); err != nil {
		return Result{}, err
	}

	var written int64
	var writtenBytes int64
	for _, t := range tasks {
		eng.progress.addPlanned(t.HasSize, t.Size)
		if eng.emit != nil {
			eng.emit(ProgressEvent{Event: "file_start", Path: t.ItemPath, Total: t.Size})
		}
		if err := copyFile(t.SourcePath, t.TargetPath); err != nil {
			return Result{}, err
		}
		eng.progress.completeFile(t.HasSize, t.Size)
		written++
		writtenBytes += t.Size
		if eng.emit != nil {
			eng.emit(ProgressEvent{Event: "file_done", Path: t.ItemPath})
		}
	}

	return Result{OutputDir: outputDir, FilesWritten: int(written), BytesWritten: writtenBytes}, nil
}

func archiveCachePath(root, owner, repo, branch string) string {
	safeBranch := strings.ReplaceAll(branch, "/", "_")
	return filepath.Join(reposDir(root), "archives", fmt.Sprintf("%s-%s-%s.zip", owner, repo, safeBranch))
}

// ensureArchive downloads the branch zip to zipPath if not already
// present, via a temp-file-then-rename so a half-written zip is never
// mistaken for a cached one. With NoCache set, any existing zip at
// zipPath is ignored and a fresh copy is always fetched.
func ensureArchive(ctx context.Context, eng *engine, spec RequestSpec, branch, zipPath string) error {
	if !eng.cfg.NoCache {
		if _, err := os.Stat(zipPath); err == nil {
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return wrapErr(KindNetworkError, err, "create archive cache dir")
	}

	u := fmt.Sprintf("https://%s/%s/%s/archive/refs/heads/%s.zip", eng.cfg.Host, spec.Owner, spec.Repo, branch)
	isSuccess := func(status int) bool { return status >= 200 && status < 300 }
	resp, err := eng.client.doRetriedGeneric(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		addAuth(req, eng.client.token)
		return req, nil
	}, isSuccess, eng.emit)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tmp := zipPath + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return wrapErr(KindNetworkError, err, "create %s", tmp)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return wrapErr(KindNetworkError, err, "write archive body")
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return wrapErr(KindNetworkError, err, "fsync archive")
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return wrapErr(KindNetworkError, err, "close archive")
	}
	if err := os.Rename(tmp, zipPath); err != nil {
		return wrapErr(KindNetworkError, err, "rename archive into place")
	}
	return nil
}

// extractArchive unpacks zipPath into destDir and returns the name of the
// single top-level directory inside it. An existing destDir holding
// exactly one entry is taken as a prior extraction and reused as is.
// GitHub's branch archives always contain exactly one top-level
// directory; when an archive has several top-level entries, an
// archive_layout warning is emitted and "." is returned, so the caller
// treats destDir itself as the top.
func extractArchive(zipPath, destDir string, emit func(ProgressEvent)) (string, error) {
	if entries, err := os.ReadDir(destDir); err == nil && len(entries) == 1 {
		return entries[0].Name(), nil
	}
	_ = os.RemoveAll(destDir)

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", wrapErr(KindCorruptPayload, err, "open archive %s", zipPath)
	}
	defer r.Close()

	topDirs := map[string]bool{}
	for _, f := range r.File {
		parts := strings.SplitN(strings.TrimPrefix(f.Name, "/"), "/", 2)
		if parts[0] != "" {
			topDirs[parts[0]] = true
		}
	}
	if len(topDirs) != 1 {
		if emit != nil {
			emit(ProgressEvent{Level: "warn", Event: "archive_layout", Message: "archive did not have exactly one top-level directory; extracting as-is"})
		}
	}

	for _, f := range r.File {
		name := strings.TrimPrefix(f.Name, "/")
		if name == "" {
			continue
		}
		rel, err := sanitizeArchiveEntry(name)
		if err != nil {
			return "", err
		}
		target := filepath.Join(destDir, rel)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", wrapErr(KindNetworkError, err, "create dir %s", target)
			}
			continue
		}
		if f.FileInfo().Mode()&os.ModeSymlink != 0 {
			if emit != nil {
				emit(ProgressEvent{Level: "warn", Event: "skip", Path: name, Message: "skipping symlink in archive"})
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", wrapErr(KindNetworkError, err, "create parent dir for %s", target)
		}
		rc, err := f.Open()
		if err != nil {
			return "", wrapErr(KindCorruptPayload, err, "open archive entry %s", name)
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			rc.Close()
			return "", wrapErr(KindNetworkError, err, "create %s", target)
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return "", wrapErr(KindCorruptPayload, copyErr, "extract %s", name)
		}
	}

	entries, err := os.ReadDir(destDir)
	if err != nil || len(entries) == 0 {
		return "", newErr(KindCorruptPayload, "archive %s extracted to nothing", zipPath)
	}
	if len(entries) == 1 {
		return entries[0].Name(), nil
	}
	// Fallback: no single top-level directory was present in the
	// archive itself; treat destDir as the top.
	return ".", nil
}

// sanitizeArchiveEntry applies the same traversal guard used for forge
// paths to a raw zip entry name, which is just as attacker-influenced.
func sanitizeArchiveEntry(name string) (string, error) {
	item := ContentItem{Path: name, Name: lastComponent(name)}
	return SafeRelPath("", item)
}

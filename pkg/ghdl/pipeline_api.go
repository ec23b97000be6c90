// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// runAPIPipeline implements §4.6.1: enumerate via the REST contents API,
// plan, gate, and download with bounded fan-out.
func runAPIPipeline(ctx context.Context, eng *engine, spec RequestSpec) (Result, error) {
	branch, err := eng.resolveBranch(ctx, spec)
	if err != nil {
		return Result{}, err
	}

	top, err := eng.forge.ListContents(ctx, spec.Owner, spec.Repo, branch, spec.Path)
	if err != nil {
		return Result{}, err
	}
	if len(top) == 0 {
		return Result{}, newErr(KindInvalidRequest, "no content at path %q on %s/%s@%s", spec.Path, spec.Owner, spec.Repo, branch)
	}

	basePath, defaultOut := PlanLayout(spec, top)
	outputDir := eng.cfg.OutputDir
	if outputDir == "" {
		outputDir = defaultOut
	}

	if fi, err := os.Stat(outputDir); err == nil && !fi.IsDir() {
		return Result{}, newErr(KindInvalidRequest, "output path %q exists and is not a directory", outputDir)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{}, wrapErr(KindNetworkError, err, "create output dir %q", outputDir)
	}

	// Build the file inventory via a full recursive tree enumeration,
	// unless the listing is already a single file. Sizes from this pass
	// are advisory only (§3 invariant 4): absence never blocks download.
	var sizes FileMetadata
	if !(len(top) == 1 && top[0].Type == ItemFile) {
		if treeItems, err := eng.forge.EnumerateTree(ctx, spec.Owner, spec.Repo, branch); err == nil {
			sizes = make(FileMetadata, len(treeItems))
			for _, it := range treeItems {
				if it.HasSize {
					sizes[it.Path] = it.Size
				}
			}
		}
	}

	tasks, err := eng.collectAPITasks(ctx, spec, branch, basePath, outputDir, top, sizes)
	if err != nil {
		return Result{}, err
	}

	targets := make([]string, len(tasks))
	for i, t := range tasks {
		targets[i] = t.TargetPath
	}
	if err := checkOverwrite(targets, eng.cfg.Force, eng.cfg.Stdin, eng.cfg.Stdout); err != nil {
		return Result{}, err
	}

	for _, t := range tasks {
		eng.progress.addPlanned(t.HasSize, t.Size)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(eng.cfg.Parallel, 1))
	var written atomic.Int64
	var writtenBytes atomic.Int64

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if eng.emit != nil {
				eng.emit(ProgressEvent{Event: "file_start", Path: task.Source.Path, Total: task.Size})
			}
			if err := downloadFile(gctx, eng.client, eng.cfg.NoCache, task, eng.emit); err != nil {
				return err
			}
			eng.progress.completeFile(task.HasSize, task.Size)
			written.Add(1)
			writtenBytes.Add(task.Size)
			if eng.emit != nil {
				eng.emit(ProgressEvent{Event: "file_done", Path: task.Source.Path})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	return Result{
		OutputDir:    outputDir,
		FilesWritten: int(written.Load()),
		BytesWritten: writtenBytes.Load(),
	}, nil
}

// collectAPITasks walks the listing breadth-first, expanding
// directories with bounded concurrency (a worker-loop-over-a-queue, not
// mutual recursion) and producing one DownloadTask per file. Symlinks,
// submodules, and unknown types are warned and
// skipped.
func (eng *engine) collectAPITasks(ctx context.Context, spec RequestSpec, branch, basePath, outputDir string, top []ContentItem, sizes FileMetadata) ([]DownloadTask, error) {
	var fileTasks []ContentItem
	var dirsToExpand []ContentItem

	for _, it := range top {
		switch it.Type {
		case ItemFile:
			fileTasks = append(fileTasks, it)
		case ItemDir:
			dirsToExpand = append(dirsToExpand, it)
		default:
			if eng.emit != nil {
				eng.emit(ProgressEvent{Level: "warn", Event: "skip", Path: it.Path, Message: "skipping symlink/submodule/unknown entry"})
			}
		}
	}

	for len(dirsToExpand) > 0 {
		wave := dirsToExpand
		dirsToExpand = nil

		results := make([][]ContentItem, len(wave))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxInt(eng.cfg.Parallel, 1))
		for i, d := range wave {
			i, d := i, d
			g.Go(func() error {
				items, err := eng.forge.ListContents(gctx, spec.Owner, spec.Repo, branch, d.Path)
				if err != nil {
					return err
				}
				results[i] = items
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, items := range results {
			for _, it := range items {
				switch it.Type {
				case ItemFile:
					fileTasks = append(fileTasks, it)
				case ItemDir:
					dirsToExpand = append(dirsToExpand, it)
				default:
					if eng.emit != nil {
						eng.emit(ProgressEvent{Level: "warn", Event: "skip", Path: it.Path, Message: "skipping symlink/submodule/unknown entry"})
					}
				}
			}
		}
	}

	out := make([]DownloadTask, 0, len(fileTasks))
	for _, it := range fileTasks {
		rel, err := SafeRelPath(basePath, it)
		if err != nil {
			return nil, err
		}
		target, err := ResolveUnderRoot(outputDir, rel)
		if err != nil {
			return nil, err
		}
		target = filepath.FromSlash(target)

		size, hasSize := it.Size, it.HasSize
		if s, ok := sizes[it.Path]; ok {
			size, hasSize = s, true
		}
		out = append(out, DownloadTask{
			Source:  it,
			TargetPath: target,
			Size:    size,
			HasSize: hasSize,
		})
	}
	return out, nil
}

// resolveBranch asks the forge for the repository's default branch when
// spec.Branch is empty.
func (eng *engine) resolveBranch(ctx context.Context, spec RequestSpec) (string, error) {
	if spec.Branch != "" {
		return spec.Branch, nil
	}
	u := "https://" + eng.cfg.APIHost + "/repos/" + spec.Owner + "/" + spec.Repo
	body, err := eng.client.getJSONCached(ctx, u)
	if err != nil {
		return "", err
	}
	branch, err := extractDefaultBranch(body)
	if err != nil {
		return "", err
	}
	return branch, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

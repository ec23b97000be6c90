// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// runVCSPipeline implements §4.6.2: acquire the tree via a sparse,
// shallow clone of the external VCS client rather than the REST API,
// then copy the checked-out files into the output directory.
func runVCSPipeline(ctx context.Context, eng *engine, spec RequestSpec) (Result, error) {
	branch := spec.Branch
	if branch == "" {
		b, err := gitDefaultBranch(ctx, eng, spec.Owner, spec.Repo)
		if err != nil {
			return Result{}, err
		}
		branch = b
	}

	repoDir := vcsRepoDir(cacheRootOrDefault(eng.cfg), spec.Owner, spec.Repo, branch)
	if err := syncWorktree(ctx, eng, spec, branch, repoDir); err != nil {
		return Result{}, err
	}

	basePath := spec.Path
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

	srcRoot := filepath.Join(repoDir, filepath.FromSlash(basePath))
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

// vcsRepoDir computes the persistent per-(owner,repo,branch) clone
// directory under the cache root, keyed by a hash of the triple so the
// same branch reuses its shallow clone across runs.
func vcsRepoDir(root, owner, repo, branch string) string {
	sum := sha256.Sum256([]byte(owner + "/" + repo + "@" + branch))
	return filepath.Join(reposDir(root), hex.EncodeToString(sum[:])[:16])
}

// syncWorktree clones repoDir fresh if absent (removing anything stale
// left at that path first), or fetches and resets an existing clone,
// then narrows the working tree to spec.Path via sparse-checkout when a
// path was given: cone mode for a directory, no-cone for a single file.
func syncWorktree(ctx context.Context, eng *engine, spec RequestSpec, branch, repoDir string) error {
	remote := vcsRemoteURL(eng.cfg, spec.Owner, spec.Repo)
	gitBin := defaultString(eng.cfg.GitBinary, "git")

	if _, err := os.Stat(filepath.Join(repoDir, ".git")); err != nil {
		if err := os.RemoveAll(repoDir); err != nil {
			return wrapErr(KindNetworkError, err, "remove invalid repo dir %q", repoDir)
		}
		if err := os.MkdirAll(filepath.Dir(repoDir), 0o755); err != nil {
			return wrapErr(KindNetworkError, err, "create clone parent dir")
		}
		if err := runGit(ctx, gitBin, "", "clone", "--filter=blob:none", "--no-checkout", "--depth", "1",
			"--branch", branch, remote, repoDir); err != nil {
			return err
		}
	} else {
		if err := runGit(ctx, gitBin, repoDir, "fetch", "--depth", "1", "origin", branch); err != nil {
			return err
		}
		if err := runGit(ctx, gitBin, repoDir, "checkout", "-B", branch, "FETCH_HEAD"); err != nil {
			return err
		}
	}

	switch {
	case spec.Path == "":
		if err := runGit(ctx, gitBin, repoDir, "sparse-checkout", "disable"); err != nil {
			return err
		}
	case spec.Kind == Blob:
		if err := runGit(ctx, gitBin, repoDir, "sparse-checkout", "init", "--no-cone"); err != nil {
			return err
		}
		if err := runGit(ctx, gitBin, repoDir, "sparse-checkout", "set", spec.Path); err != nil {
			return err
		}
	default:
		if err := runGit(ctx, gitBin, repoDir, "sparse-checkout", "set", "--cone", spec.Path); err != nil {
			return err
		}
	}

	if err := runGit(ctx, gitBin, repoDir, "checkout", branch); err != nil {
		if err := runGit(ctx, gitBin, repoDir, "checkout", "FETCH_HEAD"); err != nil {
			return err
		}
	}
	return nil
}

// vcsRemoteURL builds the clone URL, embedding the token as the URL
// username when present so the external client authenticates without a
// credential helper.
func vcsRemoteURL(cfg Settings, owner, repo string) string {
	host := defaultString(cfg.Host, "github.com")
	token := resolveToken(cfg)
	if token == "" {
		return fmt.Sprintf("https://%s/%s/%s.git", host, owner, repo)
	}
	return fmt.Sprintf("https://%s@%s/%s/%s.git", token, host, owner, repo)
}

// runGit executes one external VCS client invocation with an
// interactive-prompt-free environment, surfacing captured stderr on
// failure, per §4.6.2 and §7.
func runGit(ctx context.Context, gitBin, dir string, args ...string) error {
	if _, err := exec.LookPath(gitBin); err != nil {
		return wrapErr(KindToolUnavailable, err, "%s not found on PATH", gitBin)
	}
	cmd := exec.CommandContext(ctx, gitBin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &Error{Kind: KindToolFailed, Message: fmt.Sprintf("%s %s", gitBin, strings.Join(args, " ")), Cause: &ToolFailedError{
			Tool: gitBin, Args: args, Stderr: stderr.String(), Cause: err,
		}}
	}
	return nil
}

// gitDefaultBranch discovers the remote's default branch without a full
// clone, by asking the external client to resolve the symbolic HEAD ref.
func gitDefaultBranch(ctx context.Context, eng *engine, owner, repo string) (string, error) {
	gitBin := defaultString(eng.cfg.GitBinary, "git")
	remote := vcsRemoteURL(eng.cfg, owner, repo)
	if _, err := exec.LookPath(gitBin); err != nil {
		return "", wrapErr(KindToolUnavailable, err, "%s not found on PATH", gitBin)
	}
	cmd := exec.CommandContext(ctx, gitBin, "ls-remote", "--symref", remote, "HEAD")
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &Error{Kind: KindToolFailed, Message: "git ls-remote --symref", Cause: &ToolFailedError{
			Tool: gitBin, Args: cmd.Args, Stderr: stderr.String(), Cause: err,
		}}
	}
	for _, line := range strings.Split(out.String(), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "ref:" && strings.HasPrefix(fields[1], "refs/heads/") {
			return strings.TrimPrefix(fields[1], "refs/heads/"), nil
		}
	}
	return "", newErr(KindRemoteError, "could not determine default branch for %s/%s", owner, repo)
}

// walkWorktree builds one FileCopyTask per regular file under srcRoot,
// skipping the VCS metadata directory and warning on symlinks.
func walkWorktree(eng *engine, srcRoot, outputDir string) ([]FileCopyTask, error) {
	var tasks []FileCopyTask
	err := filepath.WalkDir(srcRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(srcRoot, p)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if eng.emit != nil {
				eng.emit(ProgressEvent{Level: "warn", Event: "skip", Path: rel, Message: "skipping symlink"})
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		target, err := ResolveUnderRoot(outputDir, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		tasks = append(tasks, FileCopyTask{
			ItemPath:   filepath.ToSlash(rel),
			SourcePath: p,
			TargetPath: filepath.FromSlash(target),
			Size:       info.Size(),
			HasSize:    true,
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapErr(KindNetworkError, err, "walk working tree at %q", srcRoot)
	}
	return tasks, nil
}

// copyFile materializes src at dst via a temp-file-then-rename, so a
// partially written destination is never visible under its final name.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return wrapErr(KindNetworkError, err, "create parent dir for %s", dst)
	}
	in, err := os.Open(src)
	if err != nil {
		return wrapErr(KindNetworkError, err, "open %s", src)
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return wrapErr(KindNetworkError, err, "create %s", tmp)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return wrapErr(KindNetworkError, err, "copy %s to %s", src, tmp)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return wrapErr(KindNetworkError, err, "fsync %s", tmp)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return wrapErr(KindNetworkError, err, "close %s", tmp)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return wrapErr(KindNetworkError, err, "rename %s to %s", tmp, dst)
	}
	return nil
}

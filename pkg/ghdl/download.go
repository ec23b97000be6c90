// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// downloadFile streams one DownloadTask to disk with resume, hash
// verification, and rate-limit-aware retry, per §4.7. The caller is
// responsible for having already resolved and sanitized task.TargetPath.
func downloadFile(ctx context.Context, client *engineClient, noCache bool, task DownloadTask, emit func(ProgressEvent)) error {
	dst := task.TargetPath
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return wrapErr(KindNetworkError, err, "create parent dir for %s", dst)
	}

	partial := dst + ".part"
	attemptResume := false
	var startByte int64

	if !noCache {
		if fi, err := os.Stat(partial); err == nil {
			switch {
			case task.HasSize && fi.Size() >= task.Size:
				// Complete or overrun: discard and start fresh.
				_ = os.Remove(partial)
			case fi.Size() > 0:
				attemptResume = true
				startByte = fi.Size()
			}
		}
	} else {
		_ = os.Remove(partial)
	}

	isSuccess := func(status int) bool {
		if attemptResume {
			return status == http.StatusPartialContent || (status >= 200 && status < 300)
		}
		return status >= 200 && status < 300
	}

	resp, err := client.doRetriedGeneric(ctx, func() (*http.Request, error) {
		target := task.Source.DirectURL
		useRaw := target == ""
		if useRaw {
			target = task.Source.FetchURL
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		addAuth(req, client.token)
		if useRaw {
			req.Header.Set("Accept", "application/vnd.github.v3.raw")
		}
		if attemptResume {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startByte))
		}
		return req, nil
	}, isSuccess, emit)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	resumedForReal := attemptResume && resp.StatusCode == http.StatusPartialContent
	if attemptResume && !resumedForReal {
		// Server ignored Range and sent the full body from byte 0;
		// discard whatever partial bytes we had on disk.
		_ = os.Remove(partial)
	}

	flags := os.O_WRONLY | os.O_CREATE
	if resumedForReal {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(partial, flags, 0o644)
	if err != nil {
		return wrapErr(KindNetworkError, err, "open %s", partial)
	}

	total := task.Size
	downloaded := startByte
	if !resumedForReal {
		downloaded = 0
	}
	pr := &countingReader{r: resp.Body, emit: emit, path: task.Source.Path, total: total, downloaded: downloaded}

	if _, err := io.Copy(out, pr); err != nil {
		out.Close()
		return wrapErr(KindNetworkError, err, "stream body for %s", task.Source.Path)
	}
	if err := out.Close(); err != nil {
		return wrapErr(KindNetworkError, err, "flush %s", dst)
	}
	if err := os.Rename(partial, dst); err != nil {
		return wrapErr(KindNetworkError, err, "rename %s to %s", partial, dst)
	}

	if err := verifyDownload(dst, task); err != nil {
		return err
	}
	return nil
}

// countingReader wraps the response body to emit periodic progress
// events while streaming to disk.
type countingReader struct {
	r          io.Reader
	emit       func(ProgressEvent)
	path       string
	total      int64
	downloaded int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.downloaded += int64(n)
		if c.emit != nil {
			c.emit(ProgressEvent{Event: "file_progress", Path: c.path, Bytes: int64(n), Total: c.total})
		}
	}
	return n, err
}

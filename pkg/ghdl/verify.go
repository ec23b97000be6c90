// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// gitBlobSHA1 computes the forge's blob hash over a file already on
// disk: sha1("blob <size>\0" || content), matching §4.7 step 5.
func gitBlobSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", err
	}

	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", fi.Size())
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// looksLikeGitBlobSHA reports whether hash is shaped like a git blob
// sha1 (40 lowercase hex characters), the only content-hash scheme this
// package knows how to verify against a downloaded file.
func looksLikeGitBlobSHA(hash string) bool {
	if len(hash) != 40 {
		return false
	}
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// verifyDownload checks the file at path against task's known content
// hash, if any, deleting the file and returning a CorruptPayload error
// on mismatch.
func verifyDownload(path string, task DownloadTask) error {
	hash := task.Source.ContentHash
	if hash == "" || !looksLikeGitBlobSHA(hash) {
		return nil
	}
	got, err := gitBlobSHA1(path)
	if err != nil {
		return wrapErr(KindCorruptPayload, err, "hash verification for %s", path)
	}
	if got != hash {
		_ = os.Remove(path)
		return newErr(KindCorruptPayload, "hash mismatch for %s: expected %s got %s", path, hash, got)
	}
	return nil
}

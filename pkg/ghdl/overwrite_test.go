// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckOverwrite(t *testing.T) {
	t.Run("force bypasses any conflict check", func(t *testing.T) {
		dir := t.TempDir()
		existing := filepath.Join(dir, "a.txt")
		if err := os.WriteFile(existing, []byte("x"), 0o644); err != nil {
			t.Fatalf("seed: %v", err)
		}
		if err := checkOverwrite([]string{existing}, true, nil, nil); err != nil {
			t.Fatalf("unexpected error with force: %v", err)
		}
	})

	t.Run("no conflicts proceeds without prompting", func(t *testing.T) {
		dir := t.TempDir()
		target := filepath.Join(dir, "does-not-exist.txt")
		if err := checkOverwrite([]string{target}, false, nil, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("non-interactive refuses when a target already exists", func(t *testing.T) {
		dir := t.TempDir()
		existing := filepath.Join(dir, "a.txt")
		if err := os.WriteFile(existing, []byte("x"), 0o644); err != nil {
			t.Fatalf("seed: %v", err)
		}

		// A pipe is never a terminal, so checkOverwrite takes the
		// non-interactive refusal path regardless of the test runner's
		// own stdio.
		pr, pw, err := os.Pipe()
		if err != nil {
			t.Fatalf("Pipe: %v", err)
		}
		defer pr.Close()
		defer pw.Close()

		err = checkOverwrite([]string{existing}, false, pr, pw)
		if err == nil {
			t.Fatal("expected a refusal error")
		}
		var ge *Error
		if !errors.As(err, &ge) || ge.Kind != KindRefusedOverwrite {
			t.Errorf("got %v, want a KindRefusedOverwrite error", err)
		}
	})
}

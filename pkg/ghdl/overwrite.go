// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const maxShownConflicts = 10

// checkOverwrite implements the preflight gate of §4.9. targets is the
// full set of local paths a pipeline is about to write. It filters to
// those that already exist and, unless force is set, either prompts
// interactively (when both stdout and stdin are terminals) or refuses.
// The check is all-or-nothing: on denial, no bytes have been written to
// any target because this runs before the download fan-out begins.
func checkOverwrite(targets []string, force bool, stdin, stdout *os.File) error {
	if force {
		return nil
	}

	var conflicts []string
	for _, t := range targets {
		if _, err := os.Stat(t); err == nil {
			conflicts = append(conflicts, t)
		}
	}
	if len(conflicts) == 0 {
		return nil
	}

	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}

	if isatty.IsTerminal(stdout.Fd()) && isatty.IsTerminal(stdin.Fd()) {
		fmt.Fprintf(stdout, "%d file(s) already exist and would be overwritten:\n", len(conflicts))
		shown := conflicts
		if len(shown) > maxShownConflicts {
			shown = shown[:maxShownConflicts]
		}
		for _, c := range shown {
			fmt.Fprintf(stdout, "  %s\n", c)
		}
		if len(conflicts) > maxShownConflicts {
			fmt.Fprintf(stdout, "  ... and %d more\n", len(conflicts)-maxShownConflicts)
		}
		fmt.Fprint(stdout, "Overwrite? [y/N]: ")

		reader := bufio.NewReader(stdin)
		line, _ := reader.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer == "y" || answer == "yes" {
			return nil
		}
		return newErr(KindCancelled, "user declined to overwrite %d existing file(s)", len(conflicts))
	}

	return newErr(KindRefusedOverwrite, "%d file(s) already exist; pass force to overwrite", len(conflicts))
}

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// selectOrder computes the ordered list of strategies to attempt, per
// §4.6. This is a declarative table rather than nested conditionals: the
// three fallback chains become one lookup, which is also what makes them
// unit-testable in isolation.
func selectOrder(pref Strategy, vcsAvailable, wholeRepo bool) []Strategy {
	if pref != StrategyAuto {
		return []Strategy{pref}
	}
	switch {
	case vcsAvailable:
		return []Strategy{StrategyVCS, StrategyArchive, StrategyAPI}
	case wholeRepo:
		return []Strategy{StrategyArchive, StrategyAPI}
	default:
		return []Strategy{StrategyAPI, StrategyArchive}
	}
}

// vcsAvailable reports whether the external VCS client binary is on
// PATH.
func vcsAvailable(gitBinary string) bool {
	_, err := exec.LookPath(defaultString(gitBinary, "git"))
	return err == nil
}

// pipelineFunc runs one acquisition strategy end to end.
type pipelineFunc func(ctx context.Context, eng *engine, spec RequestSpec) (Result, error)

// runStrategyChain attempts each strategy in order, in the fixed
// fallback order computed by selectOrder. The first attempt's error is
// preserved as the returned error's cause; every later attempt is named
// in the message but does not replace it, so callers inspecting the
// error chain always reach the strategy that failed first.
func runStrategyChain(ctx context.Context, eng *engine, spec RequestSpec, order []Strategy, pipelines map[Strategy]pipelineFunc) (Result, error) {
	var tried []string
	var firstErr error

	for i, s := range order {
		fn, ok := pipelines[s]
		if !ok {
			continue
		}
		if i > 0 && eng.emit != nil {
			eng.emit(ProgressEvent{Level: "info", Event: "strategy_fallback", Message: fmt.Sprintf("falling back to %s strategy", s)})
		}
		res, err := fn(ctx, eng, spec)
		if err == nil {
			res.StrategyUsed = s
			return res, nil
		}
		tried = append(tried, fmt.Sprintf("%s: %v", s, err))
		if firstErr == nil {
			firstErr = err
		}
	}

	return Result{}, wrapErr(KindRemoteError, firstErr, "all strategies failed (%s)", strings.Join(tried, "; "))
}

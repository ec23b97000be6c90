// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package ghdl retrieves subtrees or individual files from a hosted Git
// forge (a GitHub-shaped REST API plus raw/archive endpoints) and
// materializes them onto the local filesystem.
//
// The entry point is Get, which takes one or more forge URLs of the form
//
//	https://<host>/<owner>/<repo>/{tree|blob}/<branch>/<path...>
//
// and a Settings value describing output location, concurrency,
// caching, and the acquisition strategy to use. Three strategies are
// available: the REST contents API, a shallow sparse-checkout via an
// external "git" binary on PATH, and a full branch archive download.
// Auto mode probes for git and picks a sensible order, falling back to
// the next strategy on failure.
//
// Example:
//
//	cfg := ghdl.DefaultSettings()
//	cfg.OutputDir = "./out"
//	results, err := ghdl.Get(ctx, []string{"https://github.com/owner/repo/tree/main/src"}, cfg, nil)
package ghdl

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"context"
)

// engine bundles the shared, per-batch state that every pipeline needs:
// the HTTP client wrapper, the forge adapter built on top of it, the
// aggregate progress counters, and the settings the batch was started
// with. One engine is built per Get call and threaded through every URL
// and every pipeline attempt in that call.
type engine struct {
	cfg      Settings
	client   *engineClient
	forge    *forgeAdapter
	rl       *RateLimitState
	cache    *responseCache
	progress *progressCounters
	emit     func(ProgressEvent)
}

// Get processes each of urls in order, selecting and running an
// acquisition strategy for each, per §4.6. Processing is sequential and
// stops at the first URL that fails outright: the returned slice holds
// the results of whichever URLs completed before that point, alongside
// the error that ended the batch.
func Get(ctx context.Context, urls []string, cfg Settings, progress ProgressFunc) ([]Result, error) {
	if cfg.Parallel <= 0 {
		cfg.Parallel = DefaultSettings().Parallel
	}
	if cfg.Host == "" {
		cfg.Host = "github.com"
	}
	if cfg.APIHost == "" {
		cfg.APIHost = "api.github.com"
	}

	emit := func(ProgressEvent) {}
	if progress != nil {
		emit = func(ev ProgressEvent) {
			if ev.Time.IsZero() {
				ev.Time = cfg.clock()
			}
			progress(ev)
		}
	}

	root := cfg.CacheRoot
	if root == "" {
		root = cacheRoot()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = buildHTTPClient()
	}

	rl := &RateLimitState{}
	rc := newResponseCache(responsesDir(root))
	client := &engineClient{
		http:    httpClient,
		token:   resolveToken(cfg),
		cache:   rc,
		noCache: cfg.NoCache,
		rl:      rl,
		emit:    emit,
		now:     cfg.now,
	}

	eng := &engine{
		cfg:      cfg,
		client:   client,
		forge:    &forgeAdapter{client: client, apiHost: cfg.APIHost},
		rl:       rl,
		cache:    rc,
		progress: newProgressCounters(),
		emit:     emit,
	}

	pipelines := map[Strategy]pipelineFunc{
		StrategyAPI:     runAPIPipeline,
		StrategyVCS:     runVCSPipeline,
		StrategyArchive: runArchivePipeline,
	}

	results := make([]Result, 0, len(urls))
	for _, raw := range urls {
		spec, err := ParseRequestSpec(raw)
		if err != nil {
			return results, err
		}

		emit(ProgressEvent{Event: "url_start", Repo: spec.Owner + "/" + spec.Repo, Branch: spec.Branch, Message: raw})

		order := selectOrder(cfg.StrategyPref, vcsAvailable(cfg.GitBinary), spec.Path == "")
		res, err := runStrategyChain(ctx, eng, spec, order, pipelines)
		if err != nil {
			return results, err
		}
		res.URL = raw
		results = append(results, res)

		emit(ProgressEvent{Event: "url_done", Repo: spec.Owner + "/" + spec.Repo, Message: res.OutputDir})
	}

	return results, nil
}

// cacheRootOrDefault resolves Settings.CacheRoot, falling back to the
// platform cache directory. Used by the VCS and archive pipelines to
// locate their repo cache.
func cacheRootOrDefault(cfg Settings) string {
	if cfg.CacheRoot != "" {
		return cfg.CacheRoot
	}
	return cacheRoot()
}

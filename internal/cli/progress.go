// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"ghdl/pkg/ghdl"
)

// barRenderer drives one cheggaaa/pb progress bar per file actively
// downloading, pooled so concurrent fan-out renders as a small stack of
// bars rather than interleaved log lines.
type barRenderer struct {
	mu   sync.Mutex
	pool *pb.Pool
	bars map[string]*pb.ProgressBar
}

func newBarRenderer() *barRenderer {
	return &barRenderer{bars: map[string]*pb.ProgressBar{}}
}

func (r *barRenderer) handler() ghdl.ProgressFunc {
	return func(ev ghdl.ProgressEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()

		switch ev.Event {
		case "file_start":
			bar := pb.New64(ev.Total).Set(pb.Bytes, true).SetTemplateString(barTemplate(ev.Path))
			r.bars[ev.Path] = bar
			if r.pool == nil {
				pool, err := pb.StartPool(bar)
				if err == nil {
					r.pool = pool
				}
			} else {
				r.pool.Add(bar)
			}
		case "file_progress":
			if bar, ok := r.bars[ev.Path]; ok {
				bar.SetCurrent(bar.Current() + ev.Bytes)
			}
		case "file_done":
			if bar, ok := r.bars[ev.Path]; ok {
				bar.SetCurrent(bar.Total())
				bar.Finish()
			}
		case "strategy_fallback":
			fmt.Fprintln(os.Stderr, color.YellowString(ev.Message))
		case "skip":
			fmt.Fprintln(os.Stderr, color.BlueString("skip: %s (%s)", ev.Path, ev.Message))
		case "error":
			fmt.Fprintln(os.Stderr, color.RedString("error: %s", ev.Message))
		}
	}
}

func (r *barRenderer) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool != nil {
		_ = r.pool.Stop()
	}
}

func barTemplate(path string) string {
	return fmt.Sprintf(`%s {{counters . }} {{bar . }} {{percent . }} {{speed . }}`, path)
}

func humanBytes(n int64) string {
	return humanize.Bytes(uint64(n))
}

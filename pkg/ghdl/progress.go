// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import "sync"

// progressCounters tracks aggregate (total/downloaded) file and byte
// counts under a single mutex, per §4.8. Missing sizes are simply not
// included in the byte totals.
type progressCounters struct {
	mu              sync.Mutex
	totalFiles      int
	downloadedFiles int
	totalBytes      int64
	downloadedBytes int64
}

func newProgressCounters() *progressCounters { return &progressCounters{} }

func (p *progressCounters) addPlanned(hasSize bool, size int64) {
	p.mu.Lock()
	p.totalFiles++
	if hasSize {
		p.totalBytes += size
	}
	p.mu.Unlock()
}

func (p *progressCounters) completeFile(hasSize bool, size int64) {
	p.mu.Lock()
	p.downloadedFiles++
	if hasSize {
		p.downloadedBytes += size
	}
	p.mu.Unlock()
}

func (p *progressCounters) snapshot() (totalFiles, downloadedFiles int, totalBytes, downloadedBytes int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalFiles, p.downloadedFiles, p.totalBytes, p.downloadedBytes
}

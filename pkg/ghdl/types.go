// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"os"
	"sync"
	"time"
)

// Kind distinguishes a tree (directory) request from a blob (file) request.
type Kind int

const (
	// Tree is a directory-shaped request.
	Tree Kind = iota
	// Blob is a single-file request.
	Blob
)

func (k Kind) String() string {
	if k == Blob {
		return "blob"
	}
	return "tree"
}

// RequestSpec is the decoded form of one input URL. It is immutable once
// constructed by ParseRequestSpec.
type RequestSpec struct {
	Owner             string
	Repo              string
	Branch            string // empty means "ask the forge for the default branch"
	Path              string // slash-normalized, no leading/trailing slash
	HasTrailingSlash  bool
	Kind              Kind
}

// ItemType classifies a ContentItem as reported by the forge.
type ItemType int

const (
	ItemFile ItemType = iota
	ItemDir
	ItemSymlink
	ItemSubmodule
	ItemOther
)

// ContentItem is one entry returned by the forge's contents or tree API.
type ContentItem struct {
	Name        string
	Path        string
	Size        int64 // 0 if unknown; HasSize reports whether it is known
	HasSize     bool
	FetchURL    string
	DirectURL   string // non-empty avoids one authenticated indirection
	Type        ItemType
	ContentHash string // git blob sha1, when known
}

// FileMetadata records advisory file sizes keyed by forge-relative path.
// It never blocks a download when absent.
type FileMetadata map[string]int64

// DownloadTask is one file to fetch via the API pipeline.
type DownloadTask struct {
	Source     ContentItem
	TargetPath string // absolute or CWD-relative; must be a descendant of the output root
	Size       int64
	HasSize    bool
}

// FileCopyTask is one file to materialize via the VCS or archive pipeline.
type FileCopyTask struct {
	ItemPath   string
	SourcePath string
	TargetPath string
	Size       int64
	HasSize    bool
}

// CachedResponse is a stored HTTP response body plus its validators.
type CachedResponse struct {
	URL                   string `json:"url"`
	Body                  []byte `json:"body"`
	ValidatorETag         string `json:"etag,omitempty"`
	ValidatorLastModified string `json:"last_modified,omitempty"`
	StoredAtEpochS        int64  `json:"timestamp"`
}

// RateLimitSnapshot is an immutable view of the forge's rate-limit headers
// at one point in time.
type RateLimitSnapshot struct {
	Limit        int
	HasLimit     bool
	Remaining    int
	HasRemaining bool
	Used         int
	HasUsed      bool
	ResetEpochS  int64
	HasReset     bool
}

// RateLimitState is the shared mutable rate-limit tracker. Zero value is
// ready to use.
type RateLimitState struct {
	mu                     sync.Mutex
	lastSnapshot           *RateLimitSnapshot
	lowestRemainingSeen    int
	hasLowestRemainingSeen bool
	lastWarnedAtRemaining  int
	hasLastWarnedAt        bool
}

// Strategy selects which acquisition pipeline to use.
type Strategy string

const (
	StrategyAPI     Strategy = "api"
	StrategyVCS     Strategy = "vcs"
	StrategyArchive Strategy = "archive"
	StrategyAuto    Strategy = "auto"
)

// Settings configures Get's behavior. All fields have sensible defaults
// filled in by DefaultSettings.
type Settings struct {
	// OutputDir overrides the computed default output directory. Empty
	// means "compute from the request shape" (see PlanLayout).
	OutputDir string

	// Parallel bounds concurrent directory-listing and file-download
	// fan-out. Must be >= 1; Get replaces a value <= 0 with
	// DefaultSettings().Parallel.
	Parallel int

	// StrategyPref is the user-selected strategy, or StrategyAuto.
	StrategyPref Strategy

	// NoCache bypasses both the response cache and partial-download reuse.
	NoCache bool

	// Force bypasses the overwrite gate.
	Force bool

	// Token is a bearer token for the forge API. Empty reduces quota but
	// is not an error.
	Token string

	// Host is the forge host, e.g. "github.com". Defaults to "github.com".
	Host string

	// APIHost is the REST API host, e.g. "api.github.com". Defaults to "api.github.com".
	APIHost string

	// CacheRoot overrides the computed cache root directory (for tests).
	CacheRoot string

	// HTTPClient overrides the transport used for all forge requests.
	// Nil means a sensibly-configured default client is built.
	HTTPClient httpDoer

	// GitBinary overrides the external VCS client binary name/path.
	// Defaults to "git".
	GitBinary string

	// Stdin/Stdout back the overwrite gate's interactive prompt. Nil
	// means os.Stdin/os.Stdout.
	Stdin  *os.File
	Stdout *os.File

	// now, if set, overrides time.Now for deterministic tests.
	now func() time.Time
}

// DefaultSettings returns Settings with sensible defaults filled in.
func DefaultSettings() Settings {
	return Settings{
		Parallel:     4,
		StrategyPref: StrategyAuto,
		Host:         "github.com",
		APIHost:      "api.github.com",
	}
}

func (s Settings) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// ProgressEvent reports one step of engine progress to a caller-supplied
// callback. Events are emitted from multiple goroutines; callbacks must
// be safe for concurrent use.
type ProgressEvent struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level,omitempty"` // "debug","info","warn","error"
	Event   string    `json:"event"`
	Repo    string    `json:"repo,omitempty"`
	Branch  string    `json:"branch,omitempty"`
	Path    string    `json:"path,omitempty"`
	Bytes   int64     `json:"bytes,omitempty"`
	Total   int64     `json:"total,omitempty"`
	Message string    `json:"message,omitempty"`
}

// ProgressFunc receives ProgressEvent values during Get.
type ProgressFunc func(ProgressEvent)

// Result summarizes the outcome of processing one URL.
type Result struct {
	URL           string
	OutputDir     string
	StrategyUsed  Strategy
	FilesWritten  int
	BytesWritten  int64
}

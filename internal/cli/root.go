// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ghdl/pkg/ghdl"
)

// RootOpts holds global CLI options shared across subcommands.
type RootOpts struct {
	Token    string
	JSONOut  bool
	Quiet    bool
	Verbose  bool
	Config   string
	LogLevel string
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ro := &RootOpts{}
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := &cobra.Command{
		Use:           "ghdl",
		Short:         "Fast, resumable downloader for files and directories from a GitHub-style forge",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.PersistentFlags().StringVarP(&ro.Token, "token", "t", "", "forge access token (also reads GHDL_TOKEN, GITHUB_TOKEN, GH_TOKEN)")
	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "emit machine-readable JSON-lines progress events")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "quiet mode (minimal output)")
	root.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "accepted; does not change what is printed")
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "path to config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "log level: debug, info, warn, error (accepted; does not change what is printed)")

	getCmd := newGetCmd(ctx, ro)
	root.AddCommand(getCmd)
	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newConfigCmd())
	root.AddCommand(newCacheCmd())

	// A bare "ghdl <url...>" runs get's action with get's default
	// settings: get's own flags are not registered on the root command
	// and the config file is not applied on this path.
	root.RunE = getCmd.RunE
	root.Args = cobra.ArbitraryArgs
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func newGetCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	cfg := ghdl.DefaultSettings()
	var strategyFlag string

	cmd := &cobra.Command{
		Use:   "get URL...",
		Short: "Download one or more files or directories",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applyConfigDefaults(cmd, ro, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			finalCfg, err := finalizeSettings(cmd, ro, &cfg, strategyFlag)
			if err != nil {
				return err
			}

			var progress ghdl.ProgressFunc
			var closeUI func()
			switch {
			case ro.JSONOut:
				progress = jsonProgress(os.Stdout)
			case ro.Quiet:
				progress = quietProgress()
			case !term.IsTerminal(int(os.Stdout.Fd())):
				// Bars render garbage on a pipe or log file; fall back
				// to the same plain lines as --quiet.
				progress = quietProgress()
			default:
				r := newBarRenderer()
				progress = r.handler()
				closeUI = r.close
			}

			results, err := ghdl.Get(ctx, args, finalCfg, progress)
			if closeUI != nil {
				closeUI()
			}
			if err != nil {
				return err
			}

			if ro.JSONOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			for _, r := range results {
				fmt.Printf("%s -> %s (%d files, %s)\n", r.URL, r.OutputDir, r.FilesWritten, humanBytes(r.BytesWritten))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfg.OutputDir, "output", "o", "", "destination directory (default: computed from the URL)")
	cmd.Flags().IntVarP(&cfg.Parallel, "parallel", "p", cfg.Parallel, "bounded concurrency for directory listing and file download")
	cmd.Flags().StringVarP(&strategyFlag, "strategy", "s", string(ghdl.StrategyAuto), "acquisition strategy: auto|api|vcs|archive")
	cmd.Flags().BoolVar(&cfg.NoCache, "no-cache", false, "bypass the response cache and partial-download reuse")
	cmd.Flags().BoolVarP(&cfg.Force, "force", "f", false, "overwrite existing files without prompting")
	cmd.Flags().StringVar(&cfg.Host, "host", cfg.Host, "forge host")
	cmd.Flags().StringVar(&cfg.APIHost, "api-host", cfg.APIHost, "forge REST API host")
	cmd.Flags().StringVar(&cfg.GitBinary, "git-binary", "git", "external VCS client binary name/path")

	return cmd
}

func finalizeSettings(cmd *cobra.Command, ro *RootOpts, cfg *ghdl.Settings, strategyFlag string) (ghdl.Settings, error) {
	c := *cfg
	c.Token = strings.TrimSpace(ro.Token)

	switch strings.ToLower(strategyFlag) {
	case "", "auto":
		c.StrategyPref = ghdl.StrategyAuto
	case "api":
		c.StrategyPref = ghdl.StrategyAPI
	case "vcs":
		c.StrategyPref = ghdl.StrategyVCS
	case "archive":
		c.StrategyPref = ghdl.StrategyArchive
	default:
		return c, fmt.Errorf("invalid --strategy %q (expected auto, api, vcs, or archive)", strategyFlag)
	}

	return c, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// quietProgress prints only file completion and error lines.
func quietProgress() ghdl.ProgressFunc {
	return func(ev ghdl.ProgressEvent) {
		switch ev.Event {
		case "file_done":
			fmt.Printf("done: %s\n", ev.Path)
		case "strategy_fallback":
			fmt.Println(ev.Message)
		case "error":
			fmt.Fprintf(os.Stderr, "error: %s\n", ev.Message)
		}
	}
}

// jsonProgress returns a JSON-lines progress handler, matching the
// teacher's --json mode.
func jsonProgress(w io.Writer) ghdl.ProgressFunc {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	var mu sync.Mutex
	return func(ev ghdl.ProgressEvent) {
		mu.Lock()
		_ = enc.Encode(ev)
		mu.Unlock()
	}
}

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ghdl/pkg/ghdl"
)

func newCacheCmd() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the local response/download/repo cache",
	}
	cmd.PersistentFlags().StringVar(&root, "root", "", "cache root override (default: platform cache directory)")

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all cached responses, partial downloads, and VCS clones",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := ghdl.ClearCache(root)
			fmt.Printf("freed %s\n", humanize.Bytes(uint64(n)))
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stat",
		Short: "Show per-subtree cache entry counts and sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range ghdl.StatCache(root) {
				fmt.Printf("%-10s %6d entries  %10s\n", s.Name, s.Entries, humanize.Bytes(uint64(s.Bytes)))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the cache root directory",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(ghdl.CacheRoot(root))
		},
	})

	return cmd
}

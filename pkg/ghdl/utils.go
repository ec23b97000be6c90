// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ghdl

import (
	"os"
	"strings"
)

// tokenEnvVars is the fixed fallback order for the bearer token when
// Settings.Token is empty, per §6.
var tokenEnvVars = []string{"GHDL_TOKEN", "GITHUB_TOKEN", "GH_TOKEN"}

// resolveToken returns cfg.Token, trimmed, falling back through the
// fixed environment variable order.
func resolveToken(cfg Settings) string {
	if t := strings.TrimSpace(cfg.Token); t != "" {
		return t
	}
	for _, name := range tokenEnvVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

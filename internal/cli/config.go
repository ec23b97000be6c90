// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ghdl/pkg/ghdl"
)

// DefaultConfigValues returns the default configuration map written by
// "ghdl config init".
func DefaultConfigValues() map[string]any {
	d := ghdl.DefaultSettings()
	return map[string]any{
		"parallel":   d.Parallel,
		"host":       d.Host,
		"api-host":   d.APIHost,
		"git-binary": "git",
		"token":      "",
	}
}

func configPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	home, _ := os.UserHomeDir()
	for _, name := range []string{"ghdl.yaml", "ghdl.yml", "ghdl.json"} {
		p := filepath.Join(home, ".config", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// applyConfigDefaults loads the config file (flag > env > config file
// precedence: flags already set on cmd are never overridden) and fills
// in any flag the user didn't pass.
func applyConfigDefaults(cmd *cobra.Command, ro *RootOpts, dst *ghdl.Settings) error {
	path := configPath(ro.Config)
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid YAML config file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid JSON config file %s: %w", path, err)
		}
	}

	setStr := func(flagName string, set func(string)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			set(fmt.Sprint(v))
		}
	}
	setInt := func(flagName string, set func(int)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			var x int
			fmt.Sscan(fmt.Sprint(v), &x)
			set(x)
		}
	}

	setInt("parallel", func(v int) { dst.Parallel = v })
	setStr("host", func(v string) { dst.Host = v })
	setStr("api-host", func(v string) { dst.APIHost = v })
	setStr("git-binary", func(v string) { dst.GitBinary = v })

	envToken := false
	for _, name := range []string{"GHDL_TOKEN", "GITHUB_TOKEN", "GH_TOKEN"} {
		if strings.TrimSpace(os.Getenv(name)) != "" {
			envToken = true
		}
	}
	if !cmd.Flags().Changed("token") && !envToken {
		if v, ok := cfg["token"]; ok && v != nil {
			ro.Token = fmt.Sprint(v)
		}
	}

	return nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, useJSON bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long: `Creates a default configuration file at ~/.config/ghdl.yaml (or .json)

CLI flags always override the config file; the config file overrides
nothing except the environment defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("could not find home directory: %w", err)
			}
			configDir := filepath.Join(home, ".config")
			ext := ".yaml"
			if useJSON {
				ext = ".json"
			}
			path := filepath.Join(configDir, "ghdl"+ext)

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file already exists: %s\nuse --force to overwrite", path)
			}
			if err := os.MkdirAll(configDir, 0o755); err != nil {
				return fmt.Errorf("could not create config directory: %w", err)
			}

			values := DefaultConfigValues()
			var data []byte
			if useJSON {
				data, err = json.MarshalIndent(values, "", "  ")
			} else {
				data, err = yaml.Marshal(values)
			}
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("could not write config file: %w", err)
			}

			fmt.Printf("created config file: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing config file")
	cmd.Flags().BoolVar(&useJSON, "json", false, "create a JSON config instead of YAML")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath("")
			if path == "" {
				home, _ := os.UserHomeDir()
				fmt.Println("no config file found.")
				fmt.Printf("run 'ghdl config init' to create one at:\n  %s\n", filepath.Join(home, ".config", "ghdl.yaml"))
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			fmt.Printf("config file: %s\n\n", path)
			fmt.Println(string(data))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path that would be used",
		Run: func(cmd *cobra.Command, args []string) {
			path := configPath("")
			if path == "" {
				home, _ := os.UserHomeDir()
				path = filepath.Join(home, ".config", "ghdl.yaml")
			}
			fmt.Println(path)
		},
	}
}

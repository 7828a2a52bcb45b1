// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/sigil-dev/parley/internal/config"
	"github.com/sigil-dev/parley/internal/provider"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
	"github.com/sigil-dev/parley/pkg/health"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
)

// doctorHTTPClient is used for provider key validation. Exposed as a
// variable so tests can replace it.
var doctorHTTPClient = &http.Client{Timeout: 10 * time.Second}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the config, the chat backend, provider API keys, the audio player and disk space.",
		RunE:  runDoctor,
	}

	cmd.Flags().String("gateway", "", "gateway address to check (default: host of chat.endpoint)")

	return cmd
}

type doctorCheck struct {
	name string
	fn   func() string
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	ctx := cmd.Context()

	cfg, cfgErr := loadConfig()

	checks := []doctorCheck{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(cfgErr) }},
	}
	if cfg != nil {
		gateway, _ := cmd.Flags().GetString("gateway")
		if gateway == "" {
			gateway = gatewayBase(cfg.Chat.Endpoint)
		}
		checks = append(checks,
			doctorCheck{"Chat Backend", func() string { return checkGateway(gateway) }},
			doctorCheck{"Player", func() string { return checkPlayer(cfg) }},
			doctorCheck{"Disk Space", func() string { return checkDiskSpace(cfg.Server.Database) }},
		)
		for _, name := range slices.Sorted(maps.Keys(cfg.Providers)) {
			pc := cfg.Providers[name]
			checks = append(checks, doctorCheck{"Provider " + name, func() string {
				return checkProviderKey(ctx, name, pc)
			}})
		}
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("parley %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(err error) string {
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	if cfgFile := viper.ConfigFileUsed(); cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

func checkGateway(addr string) string {
	var body struct {
		Status    string           `json:"status"`
		Providers []health.Metrics `json:"providers"`
	}
	if err := newGatewayClient(addr).getJSON("/health", &body); err != nil {
		if parleyerr.HasCode(err, parleyerr.CodeCLIBackendNotRunning) {
			return fmt.Sprintf("not running at %s (run 'parley serve')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}

	available := 0
	for _, p := range body.Providers {
		if p.Available {
			available++
		}
	}
	return fmt.Sprintf("%s at %s (%d/%d providers available)", body.Status, addr, available, len(body.Providers))
}

func checkPlayer(cfg *config.Config) string {
	if !cfg.Speech.Enabled {
		return "speech disabled"
	}
	args, err := shellwords.Parse(cfg.Speech.Player)
	if err != nil || len(args) == 0 {
		return fmt.Sprintf("invalid speech.player %q", cfg.Speech.Player)
	}
	path, err := exec.LookPath(args[0])
	if err != nil {
		return fmt.Sprintf("%s not found in PATH (replies will not be spoken)", args[0])
	}
	return path
}

func checkProviderKey(ctx context.Context, name string, pc config.ProviderConfig) string {
	if !slices.Contains(provider.KnownProviders(), name) {
		return "unknown provider, skipped"
	}
	if err := provider.ValidateKey(ctx, doctorHTTPClient, name, pc.APIKey, pc.Endpoint); err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	return "api key valid"
}

func checkDiskSpace(database string) string {
	path := filepath.Dir(database)
	if database == "" {
		path = "."
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available for " + path
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}

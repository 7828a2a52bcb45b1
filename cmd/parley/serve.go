// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the parley gateway",
		Long: "Serve the chat, speech and transcript endpoints the chat command talks to, " +
			"forwarding to the configured model providers.",
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	if f := cmd.Flags().Lookup("listen"); f.Changed {
		viper.Set("server.listen", f.Value.String())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	gw, err := WireGateway(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := gw.Close(); err != nil {
			slog.Warn("closing gateway", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving parley on %s (default model %s)\n", cfg.Server.Listen, cfg.Server.DefaultRef())
	return gw.Start(ctx)
}

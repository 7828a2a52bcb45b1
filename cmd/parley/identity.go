// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/sigil-dev/parley/internal/config"
	"github.com/sigil-dev/parley/internal/identity"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// identityReport is the printable form of the device identity.
type identityReport struct {
	ID       string `yaml:"id"`
	Volatile bool   `yaml:"volatile"`
	Storage  string `yaml:"storage"`
}

func newIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Show or reset the anonymous device identity",
		Long:  "The device identity tags every transcript event. It is created on first use and kept in the OS keyring.",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the device identity, creating it if needed",
		RunE:  runIdentityShow,
	}
	show.Flags().StringP("output", "o", "text", "output format: text or yaml")

	cmd.AddCommand(
		show,
		&cobra.Command{
			Use:   "reset",
			Short: "Forget the device identity; the next session creates a new one",
			RunE:  runIdentityReset,
		},
	)

	return cmd
}

func newIdentityResolver(cfg *config.Config) *identity.Resolver {
	backend := identity.NewKeyringBackend(secretStoreFactory(), cfg.Identity.Service)
	return identity.NewResolver(backend, cfg.Identity.Key)
}

func runIdentityShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	resolver := newIdentityResolver(cfg)
	report := identityReport{
		ID:      resolver.ID(cmd.Context()),
		Storage: "keyring://" + cfg.Identity.Service + "/" + cfg.Identity.Key,
	}
	report.Volatile = resolver.Volatile()

	out := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("output")
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer func() { _ = enc.Close() }()
		return enc.Encode(report)
	case "text":
		_, err := fmt.Fprintln(out, report.ID)
		if err == nil && report.Volatile {
			_, err = fmt.Fprintln(cmd.ErrOrStderr(), "warning: keyring unavailable, this identity lasts for this process only")
		}
		return err
	default:
		return parleyerr.Errorf(parleyerr.CodeCLIInputInvalid, "unknown output format %q (want text or yaml)", format)
	}
}

func runIdentityReset(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := newIdentityResolver(cfg).Reset(); err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), "Device identity reset.")
	return err
}

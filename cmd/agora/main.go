// Package main is the entry point for the agora binary: the treasury
// governance service and its operator tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agoradao/agora/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agora",
		Short: "Donation-funded treasury governance",
		Long: `Agora runs a donation-funded treasury whose releases are decided by
weighted proposal voting.

Donors receive voting weight for deposits, create proposals to release funds,
and spend weight to vote. A board can raise emergency proposals and veto
approved ones.

Example:
  agora serve --config /etc/agora/agora.yaml
  agora migrate --path /var/lib/agora/agora.db
  agora quorum 1000 10000`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")

	rootCmd.AddCommand(newServeCmd(), newMigrateCmd(), newQuorumCmd())
	return rootCmd
}

// loadConfig reads the file named by --config, if any, with AGORA_*
// environment overrides applied.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/governance"
)

func newQuorumCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quorum <amount> <treasury-balance>",
		Short: "Show the dynamic quorum a proposal of amount would need",
		Args:  cobra.ExactArgs(2),
		RunE:  runQuorum,
	}
	cmd.Flags().Uint32("base", domain.DefaultGovernanceConfig().BaseQuorumBps, "Base quorum in basis points")
	return cmd
}

func runQuorum(cmd *cobra.Command, args []string) error {
	amount, err := domain.ParseAmount(args[0])
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	balance, err := domain.ParseAmount(args[1])
	if err != nil {
		return fmt.Errorf("treasury balance: %w", err)
	}
	base, err := cmd.Flags().GetUint32("base")
	if err != nil {
		return fmt.Errorf("failed to get base flag: %w", err)
	}
	if err := domain.ValidateBaseQuorum(base); err != nil {
		return err
	}

	quorum := governance.DynamicQuorum(amount, balance, base)
	out := cmd.OutOrStdout()
	if balance.Sign() > 0 {
		fmt.Fprintf(out, "ratio_bps=%s ", governance.RatioBps(amount, balance))
	}
	fmt.Fprintf(out, "quorum_bps=%d\n", quorum)
	return nil
}

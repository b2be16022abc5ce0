package governance

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/policy"
	"github.com/agoradao/agora/pkg/storage"
	"github.com/agoradao/agora/pkg/telemetry"
)

// CastVote records caller's vote on id and burns weight from its ledger
// balance. The burn and the tally commit together; a voter votes at most once
// per proposal.
func (e *Engine) CastVote(ctx context.Context, caller common.Address, id common.Hash, support domain.Support, weight *big.Int) error {
	err := e.observe(ctx, policy.OpCastVote, caller, func(ctx context.Context) error {
		if !domain.IsPositive(weight) {
			return domain.ErrZeroWeight
		}
		if support != domain.SupportFor && support != domain.SupportAgainst {
			return fmt.Errorf("%w: %s", domain.ErrInvalidSupport, support)
		}
		return e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := e.access.Require(ctx, caller, policy.OpCastVote); err != nil {
				return err
			}
			p, err := loadProposal(ctx, tx, id)
			if err != nil {
				return err
			}
			if p.Status != domain.StatusActive {
				return domain.ErrProposalNotActive
			}
			now := e.clock.Now()
			if !p.VotingOpen(now) {
				return domain.ErrVotingEnded
			}
			existing, err := tx.GetVote(ctx, id, caller)
			if err != nil {
				return err
			}
			if existing.Cast() {
				return domain.ErrAlreadyVoted
			}
			balance, err := e.ledger.BalanceOf(ctx, caller)
			if err != nil {
				return err
			}
			if balance.Cmp(weight) < 0 {
				return domain.ErrInsufficientWeight
			}

			if err := e.ledger.BurnFrom(ctx, e.identity, caller, weight); err != nil {
				return fmt.Errorf("burn vote weight: %w", err)
			}
			vote := domain.Vote{Support: support, Weight: new(big.Int).Set(weight)}
			if err := tx.PutVote(ctx, id, caller, vote); err != nil {
				return err
			}
			if support == domain.SupportFor {
				p.VotesFor = new(big.Int).Add(p.VotesFor, weight)
			} else {
				p.VotesAgainst = new(big.Int).Add(p.VotesAgainst, weight)
			}
			if err := tx.PutProposal(ctx, p); err != nil {
				return err
			}
			_, err = tx.Emit(ctx, domain.Event{
				Kind:       domain.EventVoteCast,
				At:         now,
				ProposalID: id,
				Actor:      caller,
				Attributes: map[string]string{"support": support.String(), "weight": weight.String()},
			})
			return err
		})
	})
	if err != nil {
		return err
	}
	telemetry.RecordVote(ctx, support)
	e.logger.InfoContext(ctx, "vote cast",
		"proposal_id", id.Hex(),
		"caller", caller.Hex(),
		"support", support.String(),
		"weight", weight.String(),
	)
	return nil
}

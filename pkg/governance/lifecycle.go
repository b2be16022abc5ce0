package governance

import (
	"context"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/trace"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/policy"
	"github.com/agoradao/agora/pkg/storage"
	"github.com/agoradao/agora/pkg/telemetry"
)

// FinalizeProposal closes the voting window of an Active proposal and decides
// Approved or Rejected against its dynamic quorum. Anyone may call it.
func (e *Engine) FinalizeProposal(ctx context.Context, caller common.Address, id common.Hash) (domain.ProposalStatus, error) {
	var (
		outcome domain.ProposalStatus
		active  uint32
	)
	err := e.observe(ctx, policy.OpFinalizeProposal, caller, func(ctx context.Context) error {
		return e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := e.access.Require(ctx, caller, policy.OpFinalizeProposal); err != nil {
				return err
			}
			p, err := loadProposal(ctx, tx, id)
			if err != nil {
				return err
			}
			if p.Status != domain.StatusActive {
				return domain.ErrProposalNotActive
			}
			state, err := loadState(ctx, tx)
			if err != nil {
				return err
			}
			now := e.clock.Now()
			if now.Before(p.StartTime.Add(state.Config.MinDeliberationPeriod)) {
				return domain.ErrDeliberationNotMet
			}
			if p.VotingOpen(now) {
				return domain.ErrVotingInProgress
			}
			supply, err := e.ledger.TotalSupply(ctx)
			if err != nil {
				return err
			}
			if supply.Sign() == 0 {
				return domain.ErrNoWeightInCirculation
			}
			balance, err := e.treasury.Balance(ctx)
			if err != nil {
				return err
			}

			quorum := DynamicQuorum(p.Amount, balance, state.Config.BaseQuorumBps)
			participation := ParticipationBps(p.TotalVotes(), supply)
			outcome = Outcome(p, supply, quorum)
			if err := leaveActive(ctx, tx, &state, &p, outcome); err != nil {
				return err
			}
			telemetry.RecordProposal(trace.SpanFromContext(ctx), p)
			if err := tx.PutGovernanceState(ctx, state); err != nil {
				return err
			}
			active = state.ActiveProposals
			_, err = tx.Emit(ctx, domain.Event{
				Kind:       domain.EventProposalFinalized,
				At:         now,
				ProposalID: id,
				Actor:      caller,
				Attributes: map[string]string{
					"status":            outcome.String(),
					"quorum_bps":        strconv.FormatUint(uint64(quorum), 10),
					"participation_bps": participation.String(),
					"votes_for":         p.VotesFor.String(),
					"votes_against":     p.VotesAgainst.String(),
				},
			})
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	telemetry.RecordTransition(ctx, outcome, 1)
	telemetry.RecordActiveProposals(ctx, active)
	e.logger.InfoContext(ctx, "proposal finalized", "proposal_id", id.Hex(), "status", outcome.String())
	return outcome, nil
}

// ExecuteProposal releases the funds of an Approved proposal. The status
// change is persisted before the treasury is asked to pay.
func (e *Engine) ExecuteProposal(ctx context.Context, caller common.Address, id common.Hash) error {
	err := e.observe(ctx, policy.OpExecuteProposal, caller, func(ctx context.Context) error {
		return e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := e.access.Require(ctx, caller, policy.OpExecuteProposal); err != nil {
				return err
			}
			p, err := loadProposal(ctx, tx, id)
			if err != nil {
				return err
			}
			if p.Status != domain.StatusApproved {
				return domain.ErrNotApproved
			}
			p.Status = domain.StatusExecuted
			if err := tx.PutProposal(ctx, p); err != nil {
				return err
			}
			telemetry.RecordProposal(trace.SpanFromContext(ctx), p)
			if _, err := tx.Emit(ctx, domain.Event{
				Kind:       domain.EventProposalExecuted,
				At:         e.clock.Now(),
				ProposalID: id,
				Actor:      caller,
				Attributes: map[string]string{"recipient": p.Recipient.Hex(), "amount": p.Amount.String()},
			}); err != nil {
				return err
			}
			return e.treasury.Release(ctx, e.identity, p.Recipient, p.Amount, id)
		})
	})
	if err != nil {
		return err
	}
	telemetry.RecordTransition(ctx, domain.StatusExecuted, 1)
	e.logger.InfoContext(ctx, "proposal executed", "proposal_id", id.Hex(), "caller", caller.Hex())
	return nil
}

// VetoProposal blocks an Approved proposal. Board only; reason is recorded.
func (e *Engine) VetoProposal(ctx context.Context, caller common.Address, id common.Hash, reason string) error {
	err := e.observe(ctx, policy.OpVetoProposal, caller, func(ctx context.Context) error {
		return e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := e.access.Require(ctx, caller, policy.OpVetoProposal); err != nil {
				return err
			}
			if strings.TrimSpace(reason) == "" {
				return domain.ErrReasonEmpty
			}
			p, err := loadProposal(ctx, tx, id)
			if err != nil {
				return err
			}
			if p.Status != domain.StatusApproved {
				return domain.ErrNotApproved
			}
			p.Status = domain.StatusVetoed
			p.VetoReason = reason
			if err := tx.PutProposal(ctx, p); err != nil {
				return err
			}
			telemetry.RecordProposal(trace.SpanFromContext(ctx), p)
			_, err = tx.Emit(ctx, domain.Event{
				Kind:       domain.EventProposalVetoed,
				At:         e.clock.Now(),
				ProposalID: id,
				Actor:      caller,
				Attributes: map[string]string{"reason": reason},
			})
			return err
		})
	})
	if err != nil {
		return err
	}
	telemetry.RecordTransition(ctx, domain.StatusVetoed, 1)
	e.logger.InfoContext(ctx, "proposal vetoed", "proposal_id", id.Hex(), "caller", caller.Hex())
	return nil
}

// CleanupExpiredProposals moves every listed Active proposal whose window has
// closed without a single vote to Expired. Ineligible ids are skipped; an
// unknown id aborts the whole call.
func (e *Engine) CleanupExpiredProposals(ctx context.Context, caller common.Address, ids []common.Hash) ([]common.Hash, error) {
	var (
		expired []common.Hash
		active  uint32
	)
	err := e.observe(ctx, policy.OpCleanupExpiredProposals, caller, func(ctx context.Context) error {
		expired = nil
		return e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := e.access.Require(ctx, caller, policy.OpCleanupExpiredProposals); err != nil {
				return err
			}
			state, err := loadState(ctx, tx)
			if err != nil {
				return err
			}
			now := e.clock.Now()
			seen := make(map[common.Hash]struct{}, len(ids))
			for _, id := range ids {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				p, err := loadProposal(ctx, tx, id)
				if err != nil {
					return err
				}
				if p.Status != domain.StatusActive || p.VotingOpen(now) || p.TotalVotes().Sign() != 0 {
					continue
				}
				if err := leaveActive(ctx, tx, &state, &p, domain.StatusExpired); err != nil {
					return err
				}
				expired = append(expired, id)
			}
			active = state.ActiveProposals
			if len(expired) == 0 {
				return nil
			}
			if err := tx.PutGovernanceState(ctx, state); err != nil {
				return err
			}
			hexIDs := make([]string, len(expired))
			for i, id := range expired {
				hexIDs[i] = id.Hex()
			}
			_, err = tx.Emit(ctx, domain.Event{
				Kind:  domain.EventProposalsExpired,
				At:    now,
				Actor: caller,
				Attributes: map[string]string{
					"count": strconv.Itoa(len(expired)),
					"ids":   strings.Join(hexIDs, ","),
				},
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 {
		telemetry.RecordTransition(ctx, domain.StatusExpired, len(expired))
		telemetry.RecordActiveProposals(ctx, active)
		e.logger.InfoContext(ctx, "proposals expired", "count", len(expired), "caller", caller.Hex())
	}
	return expired, nil
}

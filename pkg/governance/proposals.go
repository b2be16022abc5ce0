package governance

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/trace"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/policy"
	"github.com/agoradao/agora/pkg/storage"
	"github.com/agoradao/agora/pkg/telemetry"
)

// ProposalInput carries the caller-supplied fields of a new proposal.
type ProposalInput struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Amount      *big.Int       `json:"amount"`
	Recipient   common.Address `json:"recipient"`
}

func (in ProposalInput) validateText() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return domain.ErrTitleEmpty
	case utf8.RuneCountInString(in.Title) > domain.MaxTitleLength:
		return domain.ErrTitleTooLong
	case strings.TrimSpace(in.Description) == "":
		return domain.ErrDescriptionEmpty
	case utf8.RuneCountInString(in.Description) > domain.MaxDescriptionLength:
		return domain.ErrDescriptionTooLong
	}
	return nil
}

// CreateProposal admits a standard proposal. The caller must be a donor.
func (e *Engine) CreateProposal(ctx context.Context, caller common.Address, in ProposalInput) (domain.Proposal, error) {
	return e.create(ctx, caller, in, domain.ProposalStandard, policy.OpCreateProposal)
}

// CreateEmergencyProposal admits a proposal on the emergency period. The
// caller must be a board member; donor status is not required.
func (e *Engine) CreateEmergencyProposal(ctx context.Context, caller common.Address, in ProposalInput) (domain.Proposal, error) {
	return e.create(ctx, caller, in, domain.ProposalEmergency, policy.OpCreateEmergencyProposal)
}

func (e *Engine) create(
	ctx context.Context,
	caller common.Address,
	in ProposalInput,
	kind domain.ProposalType,
	op policy.Operation,
) (domain.Proposal, error) {
	var created domain.Proposal
	var active uint32
	err := e.observe(ctx, op, caller, func(ctx context.Context) error {
		return e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := e.access.Require(ctx, caller, op); err != nil {
				return err
			}
			if err := in.validateText(); err != nil {
				return err
			}
			if !domain.IsPositive(in.Amount) {
				return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
			}
			balance, err := e.treasury.Balance(ctx)
			if err != nil {
				return err
			}
			if in.Amount.Cmp(balance) > 0 {
				return fmt.Errorf("%w: amount exceeds treasury balance", domain.ErrInvalidAmount)
			}
			if domain.IsZeroAddress(in.Recipient) {
				return fmt.Errorf("recipient: %w", domain.ErrZeroAddress)
			}

			state, err := loadState(ctx, tx)
			if err != nil {
				return err
			}
			if state.ActiveProposals >= state.Config.MaxActiveProposals {
				return domain.ErrMaxActiveReached
			}

			now := e.clock.Now()
			p := domain.Proposal{
				ID:           ProposalID(caller, state.NextSequence, now),
				Sequence:     state.NextSequence,
				Title:        in.Title,
				Description:  in.Description,
				Amount:       new(big.Int).Set(in.Amount),
				Recipient:    in.Recipient,
				Proposer:     caller,
				VotesFor:     new(big.Int),
				VotesAgainst: new(big.Int),
				StartTime:    now,
				EndTime:      now.Add(state.Config.VotingPeriod(kind)),
				Status:       domain.StatusActive,
				Type:         kind,
			}
			if _, err := tx.GetProposal(ctx, p.ID); err == nil {
				return fmt.Errorf("proposal id collision: %s", p.ID.Hex())
			}
			if err := tx.PutProposal(ctx, p); err != nil {
				return err
			}
			telemetry.RecordProposal(trace.SpanFromContext(ctx), p)
			state.ActiveProposals++
			state.NextSequence++
			if err := tx.PutGovernanceState(ctx, state); err != nil {
				return err
			}
			if _, err := tx.Emit(ctx, domain.Event{
				Kind:       domain.EventProposalCreated,
				At:         now,
				ProposalID: p.ID,
				Actor:      caller,
				Attributes: map[string]string{
					"type":      kind.String(),
					"amount":    p.Amount.String(),
					"recipient": p.Recipient.Hex(),
					"end_time":  p.EndTime.Format(timeLayout),
				},
			}); err != nil {
				return err
			}
			created = p
			active = state.ActiveProposals
			return nil
		})
	})
	if err != nil {
		return domain.Proposal{}, err
	}
	telemetry.RecordProposalCreated(ctx, kind)
	telemetry.RecordActiveProposals(ctx, active)
	e.logger.InfoContext(ctx, "proposal created",
		"proposal_id", created.ID.Hex(),
		"caller", caller.Hex(),
		"type", kind.String(),
		"amount", created.Amount.String(),
	)
	return created, nil
}

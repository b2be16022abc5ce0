package governance

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/storage"
)

// GetProposalDetails returns the proposal stored under id.
func (e *Engine) GetProposalDetails(ctx context.Context, id common.Hash) (domain.Proposal, error) {
	var p domain.Proposal
	err := e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		p, err = loadProposal(ctx, tx, id)
		return err
	})
	return p, err
}

// GetVoteInfo returns voter's record on id. A voter who has not voted gets
// SupportNone with zero weight.
func (e *Engine) GetVoteInfo(ctx context.Context, id common.Hash, voter common.Address) (domain.Vote, error) {
	var vote domain.Vote
	err := e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := loadProposal(ctx, tx, id); err != nil {
			return err
		}
		var err error
		vote, err = tx.GetVote(ctx, id, voter)
		return err
	})
	return vote, err
}

// GetActiveProposals returns the ids of Active proposals in creation order.
func (e *Engine) GetActiveProposals(ctx context.Context) ([]common.Hash, error) {
	proposals, err := e.ListProposals(ctx, storage.ProposalFilter{Statuses: []domain.ProposalStatus{domain.StatusActive}})
	if err != nil {
		return nil, err
	}
	ids := make([]common.Hash, len(proposals))
	for i, p := range proposals {
		ids[i] = p.ID
	}
	return ids, nil
}

// ListProposals returns proposals matching filter in creation order.
func (e *Engine) ListProposals(ctx context.Context, filter storage.ProposalFilter) ([]domain.Proposal, error) {
	var out []domain.Proposal
	err := e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListProposals(ctx, filter)
		return err
	})
	return out, err
}

// GetProposalCount returns how many proposals were ever created.
func (e *Engine) GetProposalCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		n, err = tx.CountProposals(ctx)
		return err
	})
	return n, err
}

// GetDynamicQuorum evaluates the quorum of id against the current treasury
// balance.
func (e *Engine) GetDynamicQuorum(ctx context.Context, id common.Hash) (uint32, error) {
	var quorum uint32
	err := e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		p, err := loadProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		state, err := loadState(ctx, tx)
		if err != nil {
			return err
		}
		balance, err := e.treasury.Balance(ctx)
		if err != nil {
			return err
		}
		quorum = DynamicQuorum(p.Amount, balance, state.Config.BaseQuorumBps)
		return nil
	})
	return quorum, err
}

// State returns the configuration and counters.
func (e *Engine) State(ctx context.Context) (domain.GovernanceState, error) {
	var state domain.GovernanceState
	err := e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		state, err = loadState(ctx, tx)
		return err
	})
	return state, err
}

// Config returns the current configuration.
func (e *Engine) Config(ctx context.Context) (domain.GovernanceConfig, error) {
	state, err := e.State(ctx)
	return state.Config, err
}

// BoardMembers lists the identities holding the board capability.
func (e *Engine) BoardMembers(ctx context.Context) ([]common.Address, error) {
	return e.access.Holders(ctx, domain.CapabilityBoard)
}

// Events pages through the observation log after seq.
func (e *Engine) Events(ctx context.Context, after uint64, limit int) ([]domain.Event, error) {
	var out []domain.Event
	err := e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.Events(ctx, after, limit)
		return err
	})
	return out, err
}

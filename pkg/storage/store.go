// Package storage defines the unit-of-work contract every component runs its
// operations through, plus an in-memory implementation.
//
// A public operation calls Store.Atomic once. Every write made through the Tx
// commits together when the callback returns nil and is discarded otherwise.
// The context handed to the callback carries the transaction, so a component
// called from inside it (Governance → Treasury → Ledger) joins the same unit of
// work instead of opening its own. Events emitted through Tx.Emit are journaled
// in the transaction and handed to the Publisher only after the outermost
// commit.
package storage

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoradao/agora/pkg/domain"
)

var (
	// ErrNotFound is returned when a requested record does not exist in the store.
	ErrNotFound = errors.New("record not found")
	// ErrClosed is returned by Atomic after Close.
	ErrClosed = errors.New("store is closed")
)

// Store runs atomic units of work.
type Store interface {
	// Atomic runs fn inside a transaction. When ctx already carries a
	// transaction of this store, fn joins it.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Publisher receives events once the transaction that emitted them commits.
type Publisher interface {
	Publish(ctx context.Context, events []domain.Event)
}

// ProposalFilter narrows ListProposals. An empty Statuses matches every proposal.
type ProposalFilter struct {
	Statuses []domain.ProposalStatus
}

// Matches reports whether p passes the filter.
func (f ProposalFilter) Matches(p domain.Proposal) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, status := range f.Statuses {
		if p.Status == status {
			return true
		}
	}
	return false
}

// TreasuryState is the treasury's persisted singleton.
type TreasuryState struct {
	Balance    *big.Int
	Price      *big.Int
	Governance domain.Binding[common.Address]
}

// LedgerState is the weight ledger's persisted singleton.
type LedgerState struct {
	TotalSupply *big.Int
	Minter      domain.Binding[common.Address]
	Burner      domain.Binding[common.Address]
}

// Tx exposes every durable record inside one unit of work.
type Tx interface {
	GetProposal(ctx context.Context, id common.Hash) (domain.Proposal, error)
	PutProposal(ctx context.Context, p domain.Proposal) error
	// ListProposals returns matching proposals ordered by creation sequence.
	ListProposals(ctx context.Context, filter ProposalFilter) ([]domain.Proposal, error)
	CountProposals(ctx context.Context) (uint64, error)

	// GetVote returns the zero Vote (SupportNone) when voter has not voted.
	GetVote(ctx context.Context, id common.Hash, voter common.Address) (domain.Vote, error)
	PutVote(ctx context.Context, id common.Hash, voter common.Address, vote domain.Vote) error

	GovernanceState(ctx context.Context) (domain.GovernanceState, bool, error)
	PutGovernanceState(ctx context.Context, state domain.GovernanceState) error

	TreasuryState(ctx context.Context) (TreasuryState, bool, error)
	PutTreasuryState(ctx context.Context, state TreasuryState) error
	IsDonor(ctx context.Context, addr common.Address) (bool, error)
	MarkDonor(ctx context.Context, addr common.Address) error
	CreditPayout(ctx context.Context, addr common.Address, amount *big.Int) error
	Payout(ctx context.Context, addr common.Address) (*big.Int, error)

	LedgerState(ctx context.Context) (LedgerState, error)
	PutLedgerState(ctx context.Context, state LedgerState) error
	LedgerBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	PutLedgerBalance(ctx context.Context, addr common.Address, balance *big.Int) error

	HasGrant(ctx context.Context, grant domain.Grant) (bool, error)
	PutGrant(ctx context.Context, grant domain.Grant) error
	DeleteGrant(ctx context.Context, grant domain.Grant) error
	// Capabilities lists the capabilities granted to addr.
	Capabilities(ctx context.Context, addr common.Address) ([]domain.Capability, error)
	// Holders lists the identities holding capability, sorted by address.
	Holders(ctx context.Context, capability domain.Capability) ([]common.Address, error)

	// Emit journals event and queues it for publication after commit.
	Emit(ctx context.Context, event domain.Event) (domain.Event, error)
	// Events returns journaled events with Seq > after, oldest first. A
	// non-positive limit returns all of them.
	Events(ctx context.Context, after uint64, limit int) ([]domain.Event, error)
}

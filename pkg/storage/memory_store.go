package storage

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoradao/agora/pkg/domain"
)

type voteKey struct {
	proposal common.Hash
	voter    common.Address
}

type memoryState struct {
	proposals  map[common.Hash]domain.Proposal
	votes      map[voteKey]domain.Vote
	governance *domain.GovernanceState
	treasury   *TreasuryState
	donors     map[common.Address]struct{}
	payouts    map[common.Address]*big.Int
	ledger     LedgerState
	balances   map[common.Address]*big.Int
	grants     map[domain.Grant]struct{}
	events     []domain.Event
}

func newMemoryState() *memoryState {
	return &memoryState{
		proposals: make(map[common.Hash]domain.Proposal),
		votes:     make(map[voteKey]domain.Vote),
		donors:    make(map[common.Address]struct{}),
		payouts:   make(map[common.Address]*big.Int),
		ledger:    LedgerState{TotalSupply: new(big.Int)},
		balances:  make(map[common.Address]*big.Int),
		grants:    make(map[domain.Grant]struct{}),
	}
}

// clone copies the maps. Stored values are never mutated in place, so a
// shallow copy is enough for copy-on-write.
func (s *memoryState) clone() *memoryState {
	next := &memoryState{
		proposals: maps.Clone(s.proposals),
		votes:     maps.Clone(s.votes),
		donors:    maps.Clone(s.donors),
		payouts:   maps.Clone(s.payouts),
		ledger:    s.ledger,
		balances:  maps.Clone(s.balances),
		grants:    maps.Clone(s.grants),
		events:    s.events[:len(s.events):len(s.events)],
	}
	if s.governance != nil {
		gov := *s.governance
		next.governance = &gov
	}
	if s.treasury != nil {
		treasury := *s.treasury
		next.treasury = &treasury
	}
	return next
}

// MemoryStore is an in-memory implementation of Store. Each outer transaction
// works on a copy of the state that replaces the live state on commit.
type MemoryStore struct {
	mu        sync.Mutex
	state     *memoryState
	publisher Publisher
	closed    bool
}

// NewMemoryStore creates an empty MemoryStore. A nil publisher drops events
// after journaling them.
func NewMemoryStore(publisher Publisher) *MemoryStore {
	return &MemoryStore{
		state:     newMemoryState(),
		publisher: publisher,
	}
}

// Atomic runs fn against a private copy of the state and commits it if fn succeeds.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if tx, ok := TxFrom(ctx, s); ok {
		return fn(ctx, tx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pending, err := s.run(ctx, fn)
	if err != nil {
		return err
	}
	if s.publisher != nil && len(pending) > 0 {
		s.publisher.Publish(ctx, pending)
	}
	return nil
}

func (s *MemoryStore) run(ctx context.Context, fn func(ctx context.Context, tx Tx) error) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	tx := &memoryTx{state: s.state.clone()}
	if err := fn(WithTx(ctx, s, tx), tx); err != nil {
		return nil, err
	}
	s.state = tx.state
	return tx.pending, nil
}

// Close marks the store closed; later transactions fail.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memoryTx struct {
	state   *memoryState
	pending []domain.Event
}

func (t *memoryTx) GetProposal(_ context.Context, id common.Hash) (domain.Proposal, error) {
	p, ok := t.state.proposals[id]
	if !ok {
		return domain.Proposal{}, fmt.Errorf("proposal %s: %w", id.Hex(), ErrNotFound)
	}
	return p.Clone(), nil
}

func (t *memoryTx) PutProposal(_ context.Context, p domain.Proposal) error {
	t.state.proposals[p.ID] = p.Clone()
	return nil
}

func (t *memoryTx) ListProposals(_ context.Context, filter ProposalFilter) ([]domain.Proposal, error) {
	out := make([]domain.Proposal, 0, len(t.state.proposals))
	for _, p := range t.state.proposals {
		if filter.Matches(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (t *memoryTx) CountProposals(_ context.Context) (uint64, error) {
	return uint64(len(t.state.proposals)), nil
}

func (t *memoryTx) GetVote(_ context.Context, id common.Hash, voter common.Address) (domain.Vote, error) {
	vote, ok := t.state.votes[voteKey{proposal: id, voter: voter}]
	if !ok {
		return domain.Vote{Support: domain.SupportNone, Weight: new(big.Int)}, nil
	}
	return vote.Clone(), nil
}

func (t *memoryTx) PutVote(_ context.Context, id common.Hash, voter common.Address, vote domain.Vote) error {
	t.state.votes[voteKey{proposal: id, voter: voter}] = vote.Clone()
	return nil
}

func (t *memoryTx) GovernanceState(_ context.Context) (domain.GovernanceState, bool, error) {
	if t.state.governance == nil {
		return domain.GovernanceState{}, false, nil
	}
	return *t.state.governance, true, nil
}

func (t *memoryTx) PutGovernanceState(_ context.Context, state domain.GovernanceState) error {
	t.state.governance = &state
	return nil
}

func (t *memoryTx) TreasuryState(_ context.Context) (TreasuryState, bool, error) {
	if t.state.treasury == nil {
		return TreasuryState{Balance: new(big.Int), Price: new(big.Int)}, false, nil
	}
	state := *t.state.treasury
	state.Balance = domain.CloneInt(state.Balance)
	state.Price = domain.CloneInt(state.Price)
	return state, true, nil
}

func (t *memoryTx) PutTreasuryState(_ context.Context, state TreasuryState) error {
	state.Balance = domain.CloneInt(state.Balance)
	state.Price = domain.CloneInt(state.Price)
	t.state.treasury = &state
	return nil
}

func (t *memoryTx) IsDonor(_ context.Context, addr common.Address) (bool, error) {
	_, ok := t.state.donors[addr]
	return ok, nil
}

func (t *memoryTx) MarkDonor(_ context.Context, addr common.Address) error {
	t.state.donors[addr] = struct{}{}
	return nil
}

func (t *memoryTx) CreditPayout(_ context.Context, addr common.Address, amount *big.Int) error {
	current := t.state.payouts[addr]
	t.state.payouts[addr] = new(big.Int).Add(domain.CloneInt(current), amount)
	return nil
}

func (t *memoryTx) Payout(_ context.Context, addr common.Address) (*big.Int, error) {
	return domain.CloneInt(t.state.payouts[addr]), nil
}

func (t *memoryTx) LedgerState(_ context.Context) (LedgerState, error) {
	state := t.state.ledger
	state.TotalSupply = domain.CloneInt(state.TotalSupply)
	return state, nil
}

func (t *memoryTx) PutLedgerState(_ context.Context, state LedgerState) error {
	state.TotalSupply = domain.CloneInt(state.TotalSupply)
	t.state.ledger = state
	return nil
}

func (t *memoryTx) LedgerBalance(_ context.Context, addr common.Address) (*big.Int, error) {
	return domain.CloneInt(t.state.balances[addr]), nil
}

func (t *memoryTx) PutLedgerBalance(_ context.Context, addr common.Address, balance *big.Int) error {
	if balance.Sign() == 0 {
		delete(t.state.balances, addr)
		return nil
	}
	t.state.balances[addr] = domain.CloneInt(balance)
	return nil
}

func (t *memoryTx) HasGrant(_ context.Context, grant domain.Grant) (bool, error) {
	_, ok := t.state.grants[grant]
	return ok, nil
}

func (t *memoryTx) PutGrant(_ context.Context, grant domain.Grant) error {
	t.state.grants[grant] = struct{}{}
	return nil
}

func (t *memoryTx) DeleteGrant(_ context.Context, grant domain.Grant) error {
	delete(t.state.grants, grant)
	return nil
}

func (t *memoryTx) Capabilities(_ context.Context, addr common.Address) ([]domain.Capability, error) {
	var out []domain.Capability
	for grant := range t.state.grants {
		if grant.Identity == addr {
			out = append(out, grant.Capability)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (t *memoryTx) Holders(_ context.Context, capability domain.Capability) ([]common.Address, error) {
	var out []common.Address
	for grant := range t.state.grants {
		if grant.Capability == capability {
			out = append(out, grant.Identity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out, nil
}

func (t *memoryTx) Emit(_ context.Context, event domain.Event) (domain.Event, error) {
	event = event.Clone()
	event.Seq = uint64(len(t.state.events)) + 1
	t.state.events = append(t.state.events, event)
	t.pending = append(t.pending, event)
	return event, nil
}

func (t *memoryTx) Events(_ context.Context, after uint64, limit int) ([]domain.Event, error) {
	if after >= uint64(len(t.state.events)) {
		return nil, nil
	}
	tail := t.state.events[after:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]domain.Event, len(tail))
	for i, event := range tail {
		out[i] = event.Clone()
	}
	return out, nil
}

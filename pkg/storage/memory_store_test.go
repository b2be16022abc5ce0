package storage

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoradao/agora/pkg/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, events []domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) Kinds() []domain.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]domain.EventKind, len(p.events))
	for i, event := range p.events {
		kinds[i] = event.Kind
	}
	return kinds
}

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestMemoryStore_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	store := NewMemoryStore(pub)

	err := store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.PutLedgerBalance(ctx, alice, big.NewInt(42)))
		_, err := tx.Emit(ctx, domain.Event{Kind: domain.EventDepositRecorded, Actor: alice})
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.PutLedgerBalance(ctx, alice, big.NewInt(1)))
		require.NoError(t, tx.MarkDonor(ctx, bob))
		_, err := tx.Emit(ctx, domain.Event{Kind: domain.EventDepositRecorded, Actor: bob})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		balance, err := tx.LedgerBalance(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, int64(42), balance.Int64())

		donor, err := tx.IsDonor(ctx, bob)
		require.NoError(t, err)
		assert.False(t, donor)

		events, err := tx.Events(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, uint64(1), events[0].Seq)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []domain.EventKind{domain.EventDepositRecorded}, pub.Kinds())
}

func TestMemoryStore_NestedAtomicJoinsOuter(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	store := NewMemoryStore(pub)

	err := store.Atomic(ctx, func(ctx context.Context, outer Tx) error {
		err := store.Atomic(ctx, func(ctx context.Context, inner Tx) error {
			assert.Same(t, outer, inner)
			_, err := inner.Emit(ctx, domain.Event{Kind: domain.EventBindingSet})
			return err
		})
		require.NoError(t, err)
		assert.Empty(t, pub.Kinds(), "events must wait for the outer commit")
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Empty(t, pub.Kinds())

	err = store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		events, err := tx.Events(ctx, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, events)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	amount := big.NewInt(100)
	id := common.HexToHash("0x01")

	require.NoError(t, store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		return tx.PutProposal(ctx, domain.Proposal{ID: id, Amount: amount})
	}))
	amount.SetInt64(1)

	require.NoError(t, store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.GetProposal(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(100), p.Amount.Int64())
		p.Amount.SetInt64(7)

		again, err := tx.GetProposal(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(100), again.Amount.Int64())
		return nil
	}))
}

func TestMemoryStore_ListAndGrants(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	require.NoError(t, store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		for seq := uint64(3); seq >= 1; seq-- {
			status := domain.StatusActive
			if seq == 2 {
				status = domain.StatusRejected
			}
			p := domain.Proposal{ID: common.BigToHash(new(big.Int).SetUint64(seq)), Sequence: seq, Status: status}
			require.NoError(t, tx.PutProposal(ctx, p))
		}
		require.NoError(t, tx.PutGrant(ctx, domain.Grant{Identity: bob, Capability: domain.CapabilityBoard}))
		require.NoError(t, tx.PutGrant(ctx, domain.Grant{Identity: alice, Capability: domain.CapabilityBoard}))
		require.NoError(t, tx.PutGrant(ctx, domain.Grant{Identity: alice, Capability: domain.CapabilityAdmin}))
		return nil
	}))

	require.NoError(t, store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		active, err := tx.ListProposals(ctx, ProposalFilter{Statuses: []domain.ProposalStatus{domain.StatusActive}})
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, uint64(1), active[0].Sequence)
		assert.Equal(t, uint64(3), active[1].Sequence)

		count, err := tx.CountProposals(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), count)

		holders, err := tx.Holders(ctx, domain.CapabilityBoard)
		require.NoError(t, err)
		assert.Equal(t, []common.Address{bob, alice}, holders, "holders are ordered by address bytes")

		caps, err := tx.Capabilities(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, []domain.Capability{domain.CapabilityAdmin, domain.CapabilityBoard}, caps)

		require.NoError(t, tx.DeleteGrant(ctx, domain.Grant{Identity: alice, Capability: domain.CapabilityBoard}))
		ok, err := tx.HasGrant(ctx, domain.Grant{Identity: alice, Capability: domain.CapabilityBoard})
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestMemoryStore_MissingRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	require.NoError(t, store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.GetProposal(ctx, common.HexToHash("0xdead"))
		assert.ErrorIs(t, err, ErrNotFound)

		vote, err := tx.GetVote(ctx, common.HexToHash("0xdead"), alice)
		require.NoError(t, err)
		assert.False(t, vote.Cast())
		assert.Zero(t, vote.Weight.Sign())

		_, ok, err := tx.GovernanceState(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		payout, err := tx.Payout(ctx, alice)
		require.NoError(t, err)
		assert.Zero(t, payout.Sign())
		return nil
	}))
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore(nil)
	require.NoError(t, store.Close())
	err := store.Atomic(context.Background(), func(context.Context, Tx) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

package sqlite

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/storage"
)

var (
	donor = common.HexToAddress("0x1000000000000000000000000000000000000001")
	board = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func openTempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agora.db")
	store, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ", nil)
	assert.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agora.db")
	applied, err := Migrate(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql"}, applied)

	applied, err = Migrate(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestStore_RoundTripAcrossReopen(t *testing.T) {
	ctx := context.Background()
	store, path := openTempStore(t)

	start := time.Date(2026, time.March, 1, 12, 0, 0, 123, time.UTC)
	proposal := domain.Proposal{
		ID:           common.HexToHash("0xabc"),
		Sequence:     1,
		Title:        "Community garden",
		Description:  "Seeds and tools",
		Amount:       new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil),
		Recipient:    board,
		Proposer:     donor,
		VotesFor:     big.NewInt(300),
		VotesAgainst: big.NewInt(0),
		StartTime:    start,
		EndTime:      start.Add(7 * 24 * time.Hour),
		Status:       domain.StatusActive,
		Type:         domain.ProposalStandard,
	}
	govState := domain.GovernanceState{
		Config:          domain.DefaultGovernanceConfig(),
		ActiveProposals: 1,
		NextSequence:    2,
	}

	require.NoError(t, store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.PutProposal(ctx, proposal))
		require.NoError(t, tx.PutVote(ctx, proposal.ID, donor, domain.Vote{Support: domain.SupportFor, Weight: big.NewInt(300)}))
		require.NoError(t, tx.PutGovernanceState(ctx, govState))
		require.NoError(t, tx.PutTreasuryState(ctx, storage.TreasuryState{
			Balance:    big.NewInt(5000),
			Price:      big.NewInt(3000),
			Governance: domain.BoundTo(board),
		}))
		require.NoError(t, tx.PutLedgerState(ctx, storage.LedgerState{
			TotalSupply: big.NewInt(300),
			Minter:      domain.BoundTo(board),
		}))
		require.NoError(t, tx.PutLedgerBalance(ctx, donor, big.NewInt(300)))
		require.NoError(t, tx.MarkDonor(ctx, donor))
		require.NoError(t, tx.CreditPayout(ctx, board, big.NewInt(10)))
		require.NoError(t, tx.CreditPayout(ctx, board, big.NewInt(5)))
		require.NoError(t, tx.PutGrant(ctx, domain.Grant{Identity: board, Capability: domain.CapabilityBoard}))
		_, err := tx.Emit(ctx, domain.Event{
			Kind:       domain.EventProposalCreated,
			At:         start,
			ProposalID: proposal.ID,
			Actor:      donor,
			Attributes: map[string]string{"title": proposal.Title},
		})
		return err
	}))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		got, err := tx.GetProposal(ctx, proposal.ID)
		require.NoError(t, err)
		assert.Equal(t, proposal.Title, got.Title)
		assert.Equal(t, 0, proposal.Amount.Cmp(got.Amount))
		assert.True(t, proposal.StartTime.Equal(got.StartTime))
		assert.True(t, proposal.EndTime.Equal(got.EndTime))
		assert.Equal(t, domain.StatusActive, got.Status)

		vote, err := tx.GetVote(ctx, proposal.ID, donor)
		require.NoError(t, err)
		assert.Equal(t, domain.SupportFor, vote.Support)
		assert.Equal(t, int64(300), vote.Weight.Int64())

		state, ok, err := tx.GovernanceState(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, govState, state)

		treasury, ok, err := tx.TreasuryState(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(5000), treasury.Balance.Int64())
		assert.True(t, treasury.Governance.Is(board))

		ledger, err := tx.LedgerState(ctx)
		require.NoError(t, err)
		assert.True(t, ledger.Minter.Is(board))
		_, burnerSet := ledger.Burner.Get()
		assert.False(t, burnerSet)

		payout, err := tx.Payout(ctx, board)
		require.NoError(t, err)
		assert.Equal(t, int64(15), payout.Int64())

		isDonor, err := tx.IsDonor(ctx, donor)
		require.NoError(t, err)
		assert.True(t, isDonor)

		holders, err := tx.Holders(ctx, domain.CapabilityBoard)
		require.NoError(t, err)
		assert.Equal(t, []common.Address{board}, holders)

		events, err := tx.Events(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, uint64(1), events[0].Seq)
		assert.Equal(t, "Community garden", events[0].Attributes["title"])
		return nil
	}))
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store, _ := openTempStore(t)
	boom := errors.New("boom")

	err := store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.PutLedgerBalance(ctx, donor, big.NewInt(9)))
		return store.Atomic(ctx, func(ctx context.Context, inner storage.Tx) error {
			require.NoError(t, inner.MarkDonor(ctx, donor))
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		balance, err := tx.LedgerBalance(ctx, donor)
		require.NoError(t, err)
		assert.Zero(t, balance.Sign())

		isDonor, err := tx.IsDonor(ctx, donor)
		require.NoError(t, err)
		assert.False(t, isDonor)

		_, err = tx.GetProposal(ctx, common.HexToHash("0x01"))
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	}))
}

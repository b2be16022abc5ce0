package treasury

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoradao/agora/pkg/access"
	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/ledger"
	"github.com/agoradao/agora/pkg/policy"
	"github.com/agoradao/agora/pkg/storage"
)

var (
	owner      = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	treasuryID = common.HexToAddress("0x0000000000000000000000000000000000000e02")
	governance = common.HexToAddress("0x0000000000000000000000000000000000000e03")
	donor      = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	recipient  = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	stranger   = common.HexToAddress("0x0000000000000000000000000000000000000f01")
)

type fixture struct {
	store    *storage.MemoryStore
	ledger   *ledger.WeightLedger
	access   *access.Control
	treasury *Treasury
}

func setup(t *testing.T, transferer Transferer) fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore(nil)

	engine, err := policy.NewEngine(ctx, policy.EngineOptions{})
	require.NoError(t, err)
	control, err := access.New(access.Options{Store: store, Authorizer: engine})
	require.NoError(t, err)
	_, err = control.Grant(ctx, domain.Grant{Identity: owner, Capability: domain.CapabilityAdmin})
	require.NoError(t, err)

	weights, err := ledger.New(ledger.Options{Store: store, Owner: owner})
	require.NoError(t, err)
	require.NoError(t, weights.BindMinter(ctx, owner, treasuryID))

	tr, err := New(ctx, Options{
		Store:        store,
		Ledger:       weights,
		Access:       control,
		Identity:     treasuryID,
		Owner:        owner,
		Transferer:   transferer,
		InitialPrice: new(big.Int).Mul(big.NewInt(3000), PriceScale),
	})
	require.NoError(t, err)
	require.NoError(t, tr.BindGovernance(ctx, owner, governance))
	return fixture{store: store, ledger: weights, access: control, treasury: tr}
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), PriceScale)
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)

	receipt, err := f.treasury.Deposit(ctx, donor, ether(1))
	require.NoError(t, err)
	// One ether at 3000 per ether is 3000e18 denominated units.
	assert.Equal(t, 0, ether(3000).Cmp(receipt.Denominated))
	want := ledger.WeightFor(ether(3000))
	assert.Equal(t, 0, want.Cmp(receipt.Weight))

	balance, err := f.treasury.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, ether(1).Cmp(balance))

	isDonor, err := f.treasury.IsDonor(ctx, donor)
	require.NoError(t, err)
	assert.True(t, isDonor)

	weight, err := f.ledger.BalanceOf(ctx, donor)
	require.NoError(t, err)
	assert.Equal(t, 0, want.Cmp(weight))

	_, err = f.treasury.Deposit(ctx, donor, big.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrZeroDeposit)
}

func TestDeposit_MintFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)

	// A price of one wei per ether makes a one-wei deposit worth nothing, so the mint fails.
	require.NoError(t, f.treasury.UpdatePrice(ctx, owner, big.NewInt(1)))
	_, err := f.treasury.Deposit(ctx, donor, big.NewInt(1))
	require.ErrorIs(t, err, domain.ErrZeroValue)

	balance, err := f.treasury.Balance(ctx)
	require.NoError(t, err)
	assert.Zero(t, balance.Sign())
	isDonor, err := f.treasury.IsDonor(ctx, donor)
	require.NoError(t, err)
	assert.False(t, isDonor)
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	_, err := f.treasury.Deposit(ctx, donor, ether(10))
	require.NoError(t, err)
	id := common.HexToHash("0x01")

	assert.ErrorIs(t, f.treasury.Release(ctx, stranger, recipient, ether(1), id), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.treasury.Release(ctx, governance, common.Address{}, ether(1), id), domain.ErrZeroAddress)
	assert.ErrorIs(t, f.treasury.Release(ctx, governance, recipient, big.NewInt(0), id), domain.ErrInvalidAmount)
	assert.ErrorIs(t, f.treasury.Release(ctx, governance, recipient, ether(11), id), domain.ErrInsufficientFunds)

	require.NoError(t, f.treasury.Release(ctx, governance, recipient, ether(4), id))

	balance, err := f.treasury.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, ether(6).Cmp(balance))

	paid, err := NewPayoutBook(f.store).Payout(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, 0, ether(4).Cmp(paid))
}

func TestRelease_RequiresBoundGovernance(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(nil)
	engine, err := policy.NewEngine(ctx, policy.EngineOptions{})
	require.NoError(t, err)
	control, err := access.New(access.Options{Store: store, Authorizer: engine})
	require.NoError(t, err)
	weights, err := ledger.New(ledger.Options{Store: store, Owner: owner})
	require.NoError(t, err)
	tr, err := New(ctx, Options{Store: store, Ledger: weights, Access: control, Identity: treasuryID, Owner: owner})
	require.NoError(t, err)

	err = tr.Release(ctx, governance, recipient, big.NewInt(1), common.Hash{})
	assert.ErrorIs(t, err, domain.ErrNotBound)

	assert.ErrorIs(t, tr.BindGovernance(ctx, stranger, governance), domain.ErrUnauthorized)
	require.NoError(t, tr.BindGovernance(ctx, owner, governance))
	assert.ErrorIs(t, tr.BindGovernance(ctx, owner, stranger), domain.ErrAlreadyBound)
}

// reentrantTransferer calls back into Release from inside the transfer, the
// way a hostile recipient would.
type reentrantTransferer struct {
	treasury *Treasury
	seen     *big.Int
	reentry  error
}

func (r *reentrantTransferer) Transfer(ctx context.Context, to common.Address, amount *big.Int, id common.Hash) error {
	balance, err := r.treasury.Balance(ctx)
	if err != nil {
		return err
	}
	r.seen = balance
	r.reentry = r.treasury.Release(ctx, governance, to, amount, id)
	return nil
}

func TestRelease_ReentrantCallSeesDecrementedBalance(t *testing.T) {
	ctx := context.Background()
	hostile := &reentrantTransferer{}
	f := setup(t, hostile)
	hostile.treasury = f.treasury

	_, err := f.treasury.Deposit(ctx, donor, ether(10))
	require.NoError(t, err)

	require.NoError(t, f.treasury.Release(ctx, governance, recipient, ether(6), common.HexToHash("0x02")))
	assert.Equal(t, 0, ether(4).Cmp(hostile.seen))
	assert.ErrorIs(t, hostile.reentry, domain.ErrInsufficientFunds)

	balance, err := f.treasury.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, ether(4).Cmp(balance))
}

func TestUpdatePrice(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)

	err := f.treasury.UpdatePrice(ctx, stranger, ether(1))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.ErrorIs(t, f.treasury.UpdatePrice(ctx, owner, big.NewInt(0)), domain.ErrZeroValue)
	require.NoError(t, f.treasury.UpdatePrice(ctx, owner, ether(2000)))

	price, err := f.treasury.Price(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, ether(2000).Cmp(price))

	require.NoError(t, f.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		events, err := tx.Events(ctx, 0, 0)
		require.NoError(t, err)
		last := events[len(events)-1]
		assert.Equal(t, domain.EventPriceUpdated, last.Kind)
		assert.Equal(t, ether(3000).String(), last.Attributes["old"])
		return nil
	}))
}

func TestDenominate(t *testing.T) {
	half := new(big.Int).Quo(PriceScale, big.NewInt(2))
	assert.Equal(t, 0, ether(1500).Cmp(Denominate(half, ether(3000))))
	assert.Zero(t, Denominate(big.NewInt(1), big.NewInt(1)).Sign())
}

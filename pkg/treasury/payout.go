package treasury

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoradao/agora/pkg/storage"
)

// PayoutBook is the default Transferer: it credits released value to the
// recipient's payout account in the store, inside the release transaction.
type PayoutBook struct {
	store storage.Store
}

// NewPayoutBook returns a PayoutBook over store.
func NewPayoutBook(store storage.Store) *PayoutBook {
	return &PayoutBook{store: store}
}

// Transfer implements Transferer.
func (b *PayoutBook) Transfer(ctx context.Context, to common.Address, amount *big.Int, _ common.Hash) error {
	return b.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.CreditPayout(ctx, to, amount)
	})
}

// Payout returns the total value credited to account.
func (b *PayoutBook) Payout(ctx context.Context, account common.Address) (*big.Int, error) {
	var total *big.Int
	err := b.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		total, err = tx.Payout(ctx, account)
		return err
	})
	return total, err
}

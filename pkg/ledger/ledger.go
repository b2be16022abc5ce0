// Package ledger tracks voting weight. Weight is minted by the treasury when
// a donation is recorded and burned by governance when a vote is cast; only
// the identities bound as minter and burner may do either.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/storage"
)

// Ledger is the weight accounting contract the treasury and governance consume.
type Ledger interface {
	// Mint credits account with the weight earned by a donation worth value
	// denominated units and returns the minted weight.
	Mint(ctx context.Context, caller, account common.Address, value *big.Int) (*big.Int, error)
	BurnFrom(ctx context.Context, caller, account common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
}

// WeightFor returns the weight minted for a donation worth denominated units:
// a tenth of the value plus a concave bonus of its integer square root.
func WeightFor(denominated *big.Int) *big.Int {
	if !domain.IsPositive(denominated) {
		return new(big.Int)
	}
	base := new(big.Int).Quo(denominated, big.NewInt(10))
	bonus := new(big.Int).Sqrt(denominated)
	return base.Add(base, bonus)
}

// Options configures a WeightLedger.
type Options struct {
	Store  storage.Store
	Owner  common.Address
	Logger *slog.Logger
}

// WeightLedger is the store-backed Ledger.
type WeightLedger struct {
	store  storage.Store
	owner  common.Address
	logger *slog.Logger
}

var _ Ledger = (*WeightLedger)(nil)

// New returns a WeightLedger owned by opts.Owner.
func New(opts Options) (*WeightLedger, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("ledger: store is required")
	}
	if domain.IsZeroAddress(opts.Owner) {
		return nil, fmt.Errorf("ledger: owner: %w", domain.ErrZeroAddress)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WeightLedger{store: opts.Store, owner: opts.Owner, logger: logger}, nil
}

// BindMinter sets the identity allowed to mint. It can be set once.
func (l *WeightLedger) BindMinter(ctx context.Context, caller, minter common.Address) error {
	return l.bind(ctx, caller, "minter", minter, func(s *storage.LedgerState) *domain.Binding[common.Address] {
		return &s.Minter
	})
}

// BindBurner sets the identity allowed to burn. It can be set once.
func (l *WeightLedger) BindBurner(ctx context.Context, caller, burner common.Address) error {
	return l.bind(ctx, caller, "burner", burner, func(s *storage.LedgerState) *domain.Binding[common.Address] {
		return &s.Burner
	})
}

func (l *WeightLedger) bind(
	ctx context.Context,
	caller common.Address,
	role string,
	addr common.Address,
	field func(*storage.LedgerState) *domain.Binding[common.Address],
) error {
	if caller != l.owner {
		return domain.NotOwner(caller, "ledger")
	}
	if domain.IsZeroAddress(addr) {
		return fmt.Errorf("%s: %w", role, domain.ErrZeroAddress)
	}
	err := l.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		state, err := tx.LedgerState(ctx)
		if err != nil {
			return err
		}
		if err := field(&state).Set(addr); err != nil {
			return fmt.Errorf("ledger %s: %w", role, err)
		}
		if err := tx.PutLedgerState(ctx, state); err != nil {
			return err
		}
		_, err = tx.Emit(ctx, domain.Event{
			Kind:       domain.EventBindingSet,
			Actor:      caller,
			Attributes: map[string]string{"component": "ledger", "role": role, "address": addr.Hex()},
		})
		return err
	})
	if err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "ledger binding set", "role", role, "address", addr.Hex())
	return nil
}

func requireBound(b domain.Binding[common.Address], caller common.Address, role string) error {
	if _, ok := b.Get(); !ok {
		return fmt.Errorf("ledger %s: %w", role, domain.ErrNotBound)
	}
	if !b.Is(caller) {
		return &domain.DomainError{
			Err:     domain.ErrUnauthorized,
			Code:    "UNAUTHORIZED",
			Message: fmt.Sprintf("account %s is not the ledger %s", caller, role),
			Details: map[string]any{"account": caller.String(), "role": role},
		}
	}
	return nil
}

// Mint implements Ledger.
func (l *WeightLedger) Mint(ctx context.Context, caller, account common.Address, value *big.Int) (*big.Int, error) {
	if domain.IsZeroAddress(account) {
		return nil, fmt.Errorf("mint: %w", domain.ErrZeroAddress)
	}
	if !domain.IsPositive(value) {
		return nil, fmt.Errorf("mint: %w", domain.ErrZeroValue)
	}
	weight := WeightFor(value)
	err := l.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		state, err := tx.LedgerState(ctx)
		if err != nil {
			return err
		}
		if err := requireBound(state.Minter, caller, "minter"); err != nil {
			return err
		}
		balance, err := tx.LedgerBalance(ctx, account)
		if err != nil {
			return err
		}
		if err := tx.PutLedgerBalance(ctx, account, balance.Add(balance, weight)); err != nil {
			return err
		}
		state.TotalSupply = new(big.Int).Add(state.TotalSupply, weight)
		return tx.PutLedgerState(ctx, state)
	})
	if err != nil {
		return nil, err
	}
	l.logger.DebugContext(ctx, "weight minted", "account", account.Hex(), "weight", weight.String())
	return new(big.Int).Set(weight), nil
}

// BurnFrom implements Ledger.
func (l *WeightLedger) BurnFrom(ctx context.Context, caller, account common.Address, amount *big.Int) error {
	if domain.IsZeroAddress(account) {
		return fmt.Errorf("burn: %w", domain.ErrZeroAddress)
	}
	if !domain.IsPositive(amount) {
		return fmt.Errorf("burn: %w", domain.ErrZeroValue)
	}
	err := l.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		state, err := tx.LedgerState(ctx)
		if err != nil {
			return err
		}
		if err := requireBound(state.Burner, caller, "burner"); err != nil {
			return err
		}
		balance, err := tx.LedgerBalance(ctx, account)
		if err != nil {
			return err
		}
		if balance.Cmp(amount) < 0 {
			return domain.ErrBurnExceedsBalance
		}
		if err := tx.PutLedgerBalance(ctx, account, balance.Sub(balance, amount)); err != nil {
			return err
		}
		state.TotalSupply = new(big.Int).Sub(state.TotalSupply, amount)
		return tx.PutLedgerState(ctx, state)
	})
	if err != nil {
		return err
	}
	l.logger.DebugContext(ctx, "weight burned", "account", account.Hex(), "amount", amount.String())
	return nil
}

// BalanceOf implements Ledger.
func (l *WeightLedger) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var balance *big.Int
	err := l.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		balance, err = tx.LedgerBalance(ctx, account)
		return err
	})
	return balance, err
}

// TotalSupply implements Ledger.
func (l *WeightLedger) TotalSupply(ctx context.Context) (*big.Int, error) {
	var supply *big.Int
	err := l.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		state, err := tx.LedgerState(ctx)
		if err != nil {
			return err
		}
		supply = state.TotalSupply
		return nil
	})
	return supply, err
}

// Package treasury custodies donated value. Deposits mint voting weight on
// the ledger; funds leave only through Release, which only the bound
// governance identity may call.
package treasury

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoradao/agora/pkg/access"
	"github.com/agoradao/agora/pkg/clock"
	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/ledger"
	"github.com/agoradao/agora/pkg/policy"
	"github.com/agoradao/agora/pkg/storage"
	"github.com/agoradao/agora/pkg/telemetry"
)

// PriceScale is the fixed-point scale of the deposit price: a price of
// PriceScale converts one value unit into one denominated unit.
var PriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Transferer moves released value out of custody. It runs as the last step
// of Release, after the balance has already been decremented, with a context
// that carries the release transaction.
type Transferer interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int, proposalID common.Hash) error
}

// Options configures a Treasury.
type Options struct {
	Store  storage.Store
	Ledger ledger.Ledger
	Access *access.Control
	// Identity is the address the treasury acts as towards the ledger.
	Identity common.Address
	// Owner may bind the governance identity.
	Owner common.Address
	// Transferer defaults to a PayoutBook on Store.
	Transferer Transferer
	// InitialPrice seeds a fresh store. Nil selects PriceScale.
	InitialPrice *big.Int
	Clock        clock.Clock
	Logger       *slog.Logger
}

// Treasury is the custody component.
type Treasury struct {
	store      storage.Store
	ledger     ledger.Ledger
	access     *access.Control
	identity   common.Address
	owner      common.Address
	transferer Transferer
	clock      clock.Clock
	logger     *slog.Logger
}

// DepositReceipt summarises a recorded deposit.
type DepositReceipt struct {
	Value       *big.Int `json:"value"`
	Denominated *big.Int `json:"denominated"`
	Weight      *big.Int `json:"weight"`
}

// New validates opts and seeds the treasury singleton if the store has none.
func New(ctx context.Context, opts Options) (*Treasury, error) {
	switch {
	case opts.Store == nil:
		return nil, fmt.Errorf("treasury: store is required")
	case opts.Ledger == nil:
		return nil, fmt.Errorf("treasury: ledger is required")
	case opts.Access == nil:
		return nil, fmt.Errorf("treasury: access control is required")
	case domain.IsZeroAddress(opts.Identity):
		return nil, fmt.Errorf("treasury: identity: %w", domain.ErrZeroAddress)
	case domain.IsZeroAddress(opts.Owner):
		return nil, fmt.Errorf("treasury: owner: %w", domain.ErrZeroAddress)
	}
	price := opts.InitialPrice
	if price == nil {
		price = PriceScale
	}
	if !domain.IsPositive(price) {
		return nil, fmt.Errorf("treasury: initial price: %w", domain.ErrZeroValue)
	}

	t := &Treasury{
		store:      opts.Store,
		ledger:     opts.Ledger,
		access:     opts.Access,
		identity:   opts.Identity,
		owner:      opts.Owner,
		transferer: opts.Transferer,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
	if t.transferer == nil {
		t.transferer = NewPayoutBook(opts.Store)
	}
	if t.clock == nil {
		t.clock = clock.NewMonotonic(nil)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}

	err := t.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, ok, err := tx.TreasuryState(ctx)
		if err != nil || ok {
			return err
		}
		return tx.PutTreasuryState(ctx, storage.TreasuryState{
			Balance: new(big.Int),
			Price:   new(big.Int).Set(price),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("treasury: seed state: %w", err)
	}
	return t, nil
}

// Identity returns the address the treasury acts as.
func (t *Treasury) Identity() common.Address {
	return t.identity
}

// Denominate converts value to denominated units at price.
func Denominate(value, price *big.Int) *big.Int {
	out := new(big.Int).Mul(value, price)
	return out.Quo(out, PriceScale)
}

// BindGovernance sets the identity allowed to call Release. It can be set once.
func (t *Treasury) BindGovernance(ctx context.Context, caller, governance common.Address) error {
	if caller != t.owner {
		return domain.NotOwner(caller, "treasury")
	}
	if domain.IsZeroAddress(governance) {
		return fmt.Errorf("governance: %w", domain.ErrZeroAddress)
	}
	err := t.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		state, _, err := tx.TreasuryState(ctx)
		if err != nil {
			return err
		}
		if err := state.Governance.Set(governance); err != nil {
			return fmt.Errorf("treasury governance: %w", err)
		}
		if err := tx.PutTreasuryState(ctx, state); err != nil {
			return err
		}
		_, err = tx.Emit(ctx, domain.Event{
			Kind:       domain.EventBindingSet,
			At:         t.clock.Now(),
			Actor:      caller,
			Attributes: map[string]string{"component": "treasury", "role": "governance", "address": governance.Hex()},
		})
		return err
	})
	if err != nil {
		return err
	}
	t.logger.InfoContext(ctx, "treasury governance bound", "address", governance.Hex())
	return nil
}

// Deposit records value from donor, flags donor and mints its weight.
func (t *Treasury) Deposit(ctx context.Context, donor common.Address, value *big.Int) (receipt DepositReceipt, err error) {
	ctx, span := telemetry.StartOperation(ctx, string(policy.OpDeposit))
	start := time.Now()
	defer func() {
		telemetry.RecordOperation(ctx, string(policy.OpDeposit), time.Since(start), err)
		telemetry.EndOperation(span, err)
	}()

	if !domain.IsPositive(value) {
		return DepositReceipt{}, domain.ErrZeroDeposit
	}
	if domain.IsZeroAddress(donor) {
		return DepositReceipt{}, fmt.Errorf("donor: %w", domain.ErrZeroAddress)
	}

	err = t.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		state, _, err := tx.TreasuryState(ctx)
		if err != nil {
			return err
		}
		denominated := Denominate(value, state.Price)
		state.Balance = new(big.Int).Add(state.Balance, value)
		if err := tx.PutTreasuryState(ctx, state); err != nil {
			return err
		}
		if err := tx.MarkDonor(ctx, donor); err != nil {
			return err
		}
		weight, err := t.ledger.Mint(ctx, t.identity, donor, denominated)
		if err != nil {
			return fmt.Errorf("mint weight: %w", err)
		}
		receipt = DepositReceipt{Value: new(big.Int).Set(value), Denominated: denominated, Weight: weight}
		_, err = tx.Emit(ctx, domain.Event{
			Kind:  domain.EventDepositRecorded,
			At:    t.clock.Now(),
			Actor: donor,
			Attributes: map[string]string{
				"value":       value.String(),
				"denominated": denominated.String(),
				"weight":      weight.String(),
			},
		})
		return err
	})
	if err != nil {
		t.logger.DebugContext(ctx, "deposit rejected", "donor", donor.Hex(), "error", err)
		return DepositReceipt{}, err
	}
	telemetry.RecordTreasuryMovement(ctx, "deposit")
	t.logger.InfoContext(ctx, "deposit recorded",
		"donor", donor.Hex(),
		"value", value.String(),
		"weight", receipt.Weight.String(),
	)
	return receipt, nil
}

// Release pays amount to recipient on behalf of proposalID. The balance is
// decremented and the event journaled before the Transferer runs, so a
// Transferer that re-enters Release observes the reduced balance.
func (t *Treasury) Release(ctx context.Context, caller, recipient common.Address, amount *big.Int, proposalID common.Hash) error {
	if domain.IsZeroAddress(recipient) {
		return fmt.Errorf("recipient: %w", domain.ErrZeroAddress)
	}
	if !domain.IsPositive(amount) {
		return domain.ErrInvalidAmount
	}
	err := t.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		state, _, err := tx.TreasuryState(ctx)
		if err != nil {
			return err
		}
		if _, ok := state.Governance.Get(); !ok {
			return fmt.Errorf("treasury governance: %w", domain.ErrNotBound)
		}
		if !state.Governance.Is(caller) {
			return &domain.DomainError{
				Err:     domain.ErrUnauthorized,
				Code:    "UNAUTHORIZED",
				Message: fmt.Sprintf("account %s is not the treasury governance", caller),
				Details: map[string]any{"account": caller.String()},
			}
		}
		if state.Balance.Cmp(amount) < 0 {
			return domain.ErrInsufficientFunds
		}
		state.Balance = new(big.Int).Sub(state.Balance, amount)
		if err := tx.PutTreasuryState(ctx, state); err != nil {
			return err
		}
		if _, err := tx.Emit(ctx, domain.Event{
			Kind:       domain.EventFundsTransferred,
			At:         t.clock.Now(),
			ProposalID: proposalID,
			Actor:      recipient,
			Attributes: map[string]string{"amount": amount.String()},
		}); err != nil {
			return err
		}
		if err := t.transferer.Transfer(ctx, recipient, new(big.Int).Set(amount), proposalID); err != nil {
			return fmt.Errorf("transfer failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	telemetry.RecordTreasuryMovement(ctx, "release")
	t.logger.InfoContext(ctx, "funds released",
		"proposal_id", proposalID.Hex(),
		"recipient", recipient.Hex(),
		"amount", amount.String(),
	)
	return nil
}

// UpdatePrice replaces the deposit price. Admin only.
func (t *Treasury) UpdatePrice(ctx context.Context, caller common.Address, price *big.Int) (err error) {
	ctx, span := telemetry.StartOperation(ctx, string(policy.OpUpdatePrice))
	defer func() { telemetry.EndOperation(span, err) }()

	if err := t.access.Require(ctx, caller, policy.OpUpdatePrice); err != nil {
		return err
	}
	if !domain.IsPositive(price) {
		return domain.ErrZeroValue
	}
	var old *big.Int
	err = t.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		state, _, err := tx.TreasuryState(ctx)
		if err != nil {
			return err
		}
		old = state.Price
		state.Price = new(big.Int).Set(price)
		if err := tx.PutTreasuryState(ctx, state); err != nil {
			return err
		}
		_, err = tx.Emit(ctx, domain.Event{
			Kind:       domain.EventPriceUpdated,
			At:         t.clock.Now(),
			Actor:      caller,
			Attributes: map[string]string{"old": old.String(), "new": price.String()},
		})
		return err
	})
	if err != nil {
		return err
	}
	t.logger.InfoContext(ctx, "price updated", "old", old.String(), "new", price.String())
	return nil
}

// Balance returns the custodied value.
func (t *Treasury) Balance(ctx context.Context) (*big.Int, error) {
	var balance *big.Int
	err := t.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		state, _, err := tx.TreasuryState(ctx)
		balance = state.Balance
		return err
	})
	return balance, err
}

// Price returns the current deposit price.
func (t *Treasury) Price(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := t.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		state, _, err := tx.TreasuryState(ctx)
		price = state.Price
		return err
	})
	return price, err
}

// IsDonor reports whether account has ever deposited.
func (t *Treasury) IsDonor(ctx context.Context, account common.Address) (bool, error) {
	var donor bool
	err := t.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		donor, err = tx.IsDonor(ctx, account)
		return err
	})
	return donor, err
}

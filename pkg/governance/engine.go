package governance

import (
	"context"
	"errors"
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

const timeLayout = time.RFC3339Nano

// Treasury is the custody surface governance drives.
type Treasury interface {
	Balance(ctx context.Context) (*big.Int, error)
	Release(ctx context.Context, caller, recipient common.Address, amount *big.Int, proposalID common.Hash) error
}

// Options configures an Engine.
type Options struct {
	Store    storage.Store
	Ledger   ledger.Ledger
	Treasury Treasury
	Access   *access.Control
	// Identity is the address governance acts as: the ledger burner and the
	// treasury's bound governance.
	Identity common.Address
	// Config seeds a store that has no governance state yet. The zero value
	// selects domain.DefaultGovernanceConfig.
	Config domain.GovernanceConfig
	// BoardMembers are granted the board capability when the store is first
	// initialised.
	BoardMembers []common.Address
	Clock        clock.Clock
	Logger       *slog.Logger
}

// Engine is the proposal registry and state machine.
type Engine struct {
	store    storage.Store
	ledger   ledger.Ledger
	treasury Treasury
	access   *access.Control
	identity common.Address
	clock    clock.Clock
	logger   *slog.Logger
}

// New validates opts, seeds the governance singleton when absent and grants
// the bootstrap board.
func New(ctx context.Context, opts Options) (*Engine, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("governance: store is required")
	case opts.Ledger == nil:
		return nil, errors.New("governance: ledger is required")
	case opts.Treasury == nil:
		return nil, errors.New("governance: treasury is required")
	case opts.Access == nil:
		return nil, errors.New("governance: access control is required")
	case domain.IsZeroAddress(opts.Identity):
		return nil, fmt.Errorf("governance: identity: %w", domain.ErrZeroAddress)
	}
	for _, member := range opts.BoardMembers {
		if domain.IsZeroAddress(member) {
			return nil, fmt.Errorf("governance: board member: %w", domain.ErrZeroAddress)
		}
	}
	cfg := opts.Config
	if cfg == (domain.GovernanceConfig{}) {
		cfg = domain.DefaultGovernanceConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("governance: %w", err)
	}

	e := &Engine{
		store:    opts.Store,
		ledger:   opts.Ledger,
		treasury: opts.Treasury,
		access:   opts.Access,
		identity: opts.Identity,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if e.clock == nil {
		e.clock = clock.NewMonotonic(nil)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	err := e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, ok, err := tx.GovernanceState(ctx)
		if err != nil {
			return err
		}
		if !ok {
			if err := tx.PutGovernanceState(ctx, domain.GovernanceState{Config: cfg}); err != nil {
				return err
			}
			// The bootstrap board is seeded with the state only; later
			// membership belongs to AddBoardMember and RemoveBoardMember.
			for _, member := range opts.BoardMembers {
				if _, err := e.access.Grant(ctx, domain.Grant{Identity: member, Capability: domain.CapabilityBoard}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("governance: bootstrap: %w", err)
	}
	return e, nil
}

// Identity returns the address governance acts as.
func (e *Engine) Identity() common.Address {
	return e.identity
}

// observe wraps a public operation with a span, a latency sample and a debug
// log line on rejection.
func (e *Engine) observe(ctx context.Context, op policy.Operation, caller common.Address, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.StartOperation(ctx, string(op))
	start := time.Now()
	err := fn(ctx)
	telemetry.RecordOperation(ctx, string(op), time.Since(start), err)
	telemetry.EndOperation(span, err)
	if err != nil {
		e.logger.DebugContext(ctx, "operation rejected",
			"operation", op,
			"caller", caller.Hex(),
			"code", domain.Code(err),
			"error", err,
		)
	}
	return err
}

func loadState(ctx context.Context, tx storage.Tx) (domain.GovernanceState, error) {
	state, ok, err := tx.GovernanceState(ctx)
	if err != nil {
		return domain.GovernanceState{}, err
	}
	if !ok {
		return domain.GovernanceState{}, errors.New("governance state is not initialised")
	}
	return state, nil
}

func loadProposal(ctx context.Context, tx storage.Tx, id common.Hash) (domain.Proposal, error) {
	p, err := tx.GetProposal(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Proposal{}, fmt.Errorf("%w: %s", domain.ErrProposalNotFound, id.Hex())
	}
	return p, err
}

// leaveActive moves p out of Active and releases its admission slot.
func leaveActive(ctx context.Context, tx storage.Tx, state *domain.GovernanceState, p *domain.Proposal, status domain.ProposalStatus) error {
	if p.Status != domain.StatusActive {
		return domain.ErrProposalNotActive
	}
	p.Status = status
	if state.ActiveProposals > 0 {
		state.ActiveProposals--
	}
	return tx.PutProposal(ctx, *p)
}

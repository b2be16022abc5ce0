package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go"

	"github.com/agoradao/agora/internal/breaker"
	"github.com/agoradao/agora/internal/ratelimit"
	"github.com/agoradao/agora/pkg/access"
	"github.com/agoradao/agora/pkg/api"
	"github.com/agoradao/agora/pkg/config"
	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/events"
	"github.com/agoradao/agora/pkg/governance"
	"github.com/agoradao/agora/pkg/ledger"
	"github.com/agoradao/agora/pkg/policy"
	"github.com/agoradao/agora/pkg/pricefeed"
	"github.com/agoradao/agora/pkg/storage"
	"github.com/agoradao/agora/pkg/storage/sqlite"
	"github.com/agoradao/agora/pkg/treasury"
)

// app is the fully wired process.
type app struct {
	store    storage.Store
	ledger   *ledger.WeightLedger
	treasury *treasury.Treasury
	engine   *governance.Engine
	server   *api.Server
	limiter  *ratelimit.Limiter
	feed     *pricefeed.Watcher
	nc       *nats.Conn
	logger   *slog.Logger
}

func openStore(ctx context.Context, cfg config.StorageConfig, publisher storage.Publisher) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Path, publisher)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMemory, "":
		return storage.NewMemoryStore(publisher), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// buildApp wires every component from cfg. Bindings and role grants are
// applied idempotently so a durable store can be reopened.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	sinks := events.Fanout{events.NewLogPublisher(logger)}
	if cfg.Events.NATSURL != "" {
		a.nc, err = events.Dial(ctx, cfg.Events.NATSURL, "agora")
		if err != nil {
			return a, fmt.Errorf("connect nats: %w", err)
		}
		pub := events.NewNATSPublisher(a.nc, cfg.Events.SubjectPrefix, logger).
			WithBreaker(breaker.New(breaker.DefaultConfig()))
		sinks = append(sinks, pub)
		logger.Info("publishing events to NATS", "url", cfg.Events.NATSURL)
	}

	a.store, err = openStore(ctx, cfg.Storage, sinks)
	if err != nil {
		return a, fmt.Errorf("open store: %w", err)
	}

	authz, err := policy.NewEngine(ctx, policy.EngineOptions{Logger: logger})
	if err != nil {
		return a, err
	}
	control, err := access.New(access.Options{Store: a.store, Authorizer: authz, Logger: logger})
	if err != nil {
		return a, err
	}

	adminAddr := cfg.Roles.AdminAddress()
	treasuryAddr := cfg.Identities.TreasuryAddress()
	govAddr := cfg.Identities.GovernanceAddress()

	if _, err := control.Grant(ctx, domain.Grant{Identity: adminAddr, Capability: domain.CapabilityAdmin}); err != nil {
		return a, fmt.Errorf("grant admin: %w", err)
	}

	a.ledger, err = ledger.New(ledger.Options{Store: a.store, Owner: adminAddr, Logger: logger})
	if err != nil {
		return a, err
	}
	minter := ledgerBinding(func(s storage.LedgerState) domain.Binding[common.Address] { return s.Minter })
	if err := bindOnce(ctx, a.store, "ledger minter", treasuryAddr, minter, func() error {
		return a.ledger.BindMinter(ctx, adminAddr, treasuryAddr)
	}); err != nil {
		return a, err
	}
	burner := ledgerBinding(func(s storage.LedgerState) domain.Binding[common.Address] { return s.Burner })
	if err := bindOnce(ctx, a.store, "ledger burner", govAddr, burner, func() error {
		return a.ledger.BindBurner(ctx, adminAddr, govAddr)
	}); err != nil {
		return a, err
	}

	price, err := cfg.Treasury.Price()
	if err != nil {
		return a, err
	}
	payouts := treasury.NewPayoutBook(a.store)
	a.treasury, err = treasury.New(ctx, treasury.Options{
		Store:        a.store,
		Ledger:       a.ledger,
		Access:       control,
		Identity:     treasuryAddr,
		Owner:        adminAddr,
		Transferer:   payouts,
		InitialPrice: price,
		Logger:       logger,
	})
	if err != nil {
		return a, err
	}
	if err := bindOnce(ctx, a.store, "treasury governance", govAddr, treasuryBinding, func() error {
		return a.treasury.BindGovernance(ctx, adminAddr, govAddr)
	}); err != nil {
		return a, err
	}

	a.engine, err = governance.New(ctx, governance.Options{
		Store:        a.store,
		Ledger:       a.ledger,
		Treasury:     a.treasury,
		Access:       control,
		Identity:     govAddr,
		Config:       cfg.Governance.Domain(),
		BoardMembers: cfg.Roles.BoardAddresses(),
		Logger:       logger,
	})
	if err != nil {
		return a, err
	}

	a.limiter = ratelimit.New(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
	a.server, err = api.New(api.Options{
		Governance: a.engine,
		Treasury:   a.treasury,
		Weights:    a.ledger,
		Payouts:    payouts,
		Limiter:    a.limiter,
		Logger:     logger,
	})
	if err != nil {
		return a, err
	}

	if cfg.Treasury.PriceFile != "" {
		a.feed, err = pricefeed.Start(ctx, pricefeed.Options{
			Path:    cfg.Treasury.PriceFile,
			Updater: a.treasury,
			Admin:   adminAddr,
			Logger:  logger,
		})
		if err != nil {
			return a, fmt.Errorf("start price feed: %w", err)
		}
	}
	return a, nil
}

type bindingReader func(ctx context.Context, tx storage.Tx) (domain.Binding[common.Address], error)

func ledgerBinding(field func(storage.LedgerState) domain.Binding[common.Address]) bindingReader {
	return func(ctx context.Context, tx storage.Tx) (domain.Binding[common.Address], error) {
		state, err := tx.LedgerState(ctx)
		return field(state), err
	}
}

func treasuryBinding(ctx context.Context, tx storage.Tx) (domain.Binding[common.Address], error) {
	state, _, err := tx.TreasuryState(ctx)
	return state.Governance, err
}

// bindOnce runs bind unless the persisted binding already names want. A
// binding to a different address is a configuration error.
func bindOnce(ctx context.Context, store storage.Store, name string, want common.Address, read bindingReader, bind func() error) error {
	var current domain.Binding[common.Address]
	err := store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		current, err = read(ctx, tx)
		return err
	})
	if err != nil {
		return fmt.Errorf("read %s binding: %w", name, err)
	}
	if got, ok := current.Get(); ok {
		if got != want {
			return fmt.Errorf("%s is bound to %s, configuration names %s: %w", name, got.Hex(), want.Hex(), domain.ErrAlreadyBound)
		}
		return nil
	}
	if err := bind(); err != nil {
		return fmt.Errorf("bind %s: %w", name, err)
	}
	return nil
}

// Close releases the feed, the store and the NATS connection.
func (a *app) Close() error {
	var errs []error
	if a.feed != nil {
		errs = append(errs, a.feed.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			errs = append(errs, err)
			a.nc.Close()
		}
	}
	return errors.Join(errs...)
}

// Package access keeps the (identity, capability) authorization table and
// enforces policy decisions against it.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/trace"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/policy"
	"github.com/agoradao/agora/pkg/storage"
	"github.com/agoradao/agora/pkg/telemetry"
)

// ErrDerivedCapability is returned when a caller tries to grant or revoke a
// capability that is computed from other state.
var ErrDerivedCapability = errors.New("capability is derived and cannot be granted")

// Options configures a Control.
type Options struct {
	Store      storage.Store
	Authorizer policy.Authorizer
	Logger     *slog.Logger
}

// Control resolves capabilities and checks them through the Authorizer.
type Control struct {
	store  storage.Store
	authz  policy.Authorizer
	logger *slog.Logger
}

// New returns a Control.
func New(opts Options) (*Control, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("access: store is required")
	}
	if opts.Authorizer == nil {
		return nil, fmt.Errorf("access: authorizer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Control{store: opts.Store, authz: opts.Authorizer, logger: logger}, nil
}

// Capabilities returns the granted capabilities of identity plus donor when
// the treasury has flagged it.
func (c *Control) Capabilities(ctx context.Context, identity common.Address) ([]domain.Capability, error) {
	var out []domain.Capability
	err := c.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		granted, err := tx.Capabilities(ctx, identity)
		if err != nil {
			return err
		}
		donor, err := tx.IsDonor(ctx, identity)
		if err != nil {
			return err
		}
		out = granted
		if donor {
			out = append(out, domain.CapabilityDonor)
		}
		return nil
	})
	return out, err
}

// Require fails unless caller may run op. A missing donor capability maps to
// domain.ErrNotDonor; every other denial wraps domain.ErrUnauthorized.
func (c *Control) Require(ctx context.Context, caller common.Address, op policy.Operation) error {
	capabilities, err := c.Capabilities(ctx, caller)
	if err != nil {
		return err
	}
	decision, err := c.authz.Authorize(ctx, policy.Input{
		Operation:    op,
		Identity:     caller,
		Capabilities: capabilities,
	})
	if err != nil {
		return fmt.Errorf("authorize %s: %w", op, err)
	}
	telemetry.RecordPolicyDecision(trace.SpanFromContext(ctx), decision)
	if decision.Allow {
		return nil
	}
	c.logger.DebugContext(ctx, "operation denied",
		"operation", op,
		"caller", caller.Hex(),
		"required", decision.Required,
		"reason", decision.Reason,
	)
	if decision.Required == domain.CapabilityDonor {
		return domain.ErrNotDonor
	}
	return domain.Unauthorized(caller, string(op), decision.Required)
}

// Has reports whether identity holds capability.
func (c *Control) Has(ctx context.Context, identity common.Address, capability domain.Capability) (bool, error) {
	var ok bool
	err := c.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		if capability == domain.CapabilityDonor {
			ok, err = tx.IsDonor(ctx, identity)
			return err
		}
		ok, err = tx.HasGrant(ctx, domain.Grant{Identity: identity, Capability: capability})
		return err
	})
	return ok, err
}

// Grant adds a row to the table. It reports false when the row already existed.
func (c *Control) Grant(ctx context.Context, grant domain.Grant) (bool, error) {
	if grant.Capability == domain.CapabilityDonor {
		return false, ErrDerivedCapability
	}
	if domain.IsZeroAddress(grant.Identity) {
		return false, domain.ErrZeroAddress
	}
	var added bool
	err := c.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		exists, err := tx.HasGrant(ctx, grant)
		if err != nil || exists {
			return err
		}
		added = true
		return tx.PutGrant(ctx, grant)
	})
	return added, err
}

// Revoke removes a row from the table. It reports false when the row did not exist.
func (c *Control) Revoke(ctx context.Context, grant domain.Grant) (bool, error) {
	if grant.Capability == domain.CapabilityDonor {
		return false, ErrDerivedCapability
	}
	var removed bool
	err := c.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		exists, err := tx.HasGrant(ctx, grant)
		if err != nil || !exists {
			return err
		}
		removed = true
		return tx.DeleteGrant(ctx, grant)
	})
	return removed, err
}

// Holders lists the identities granted capability.
func (c *Control) Holders(ctx context.Context, capability domain.Capability) ([]common.Address, error) {
	var out []common.Address
	err := c.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.Holders(ctx, capability)
		return err
	})
	return out, err
}

package governance

import (
	"context"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/policy"
	"github.com/agoradao/agora/pkg/storage"
)

// UpdateVotingPeriods replaces both voting periods. Admin only. Proposals
// already Active keep the window they were created with.
func (e *Engine) UpdateVotingPeriods(ctx context.Context, caller common.Address, standard, emergency time.Duration) error {
	return e.updateConfig(ctx, caller, policy.OpUpdateVotingPeriods,
		func() error { return domain.ValidateVotingPeriods(standard, emergency) },
		func(cfg *domain.GovernanceConfig) map[string]string {
			attrs := map[string]string{
				"field":         "voting_periods",
				"old_standard":  cfg.StandardPeriod.String(),
				"old_emergency": cfg.EmergencyPeriod.String(),
				"new_standard":  standard.String(),
				"new_emergency": emergency.String(),
			}
			cfg.StandardPeriod, cfg.EmergencyPeriod = standard, emergency
			return attrs
		})
}

// UpdateBaseQuorum replaces the base quorum. Admin only.
func (e *Engine) UpdateBaseQuorum(ctx context.Context, caller common.Address, bps uint32) error {
	return e.updateConfig(ctx, caller, policy.OpUpdateBaseQuorum,
		func() error { return domain.ValidateBaseQuorum(bps) },
		func(cfg *domain.GovernanceConfig) map[string]string {
			attrs := map[string]string{
				"field": "base_quorum_bps",
				"old":   strconv.FormatUint(uint64(cfg.BaseQuorumBps), 10),
				"new":   strconv.FormatUint(uint64(bps), 10),
			}
			cfg.BaseQuorumBps = bps
			return attrs
		})
}

// UpdateMinDeliberationPeriod replaces the minimum deliberation period. Admin only.
func (e *Engine) UpdateMinDeliberationPeriod(ctx context.Context, caller common.Address, period time.Duration) error {
	return e.updateConfig(ctx, caller, policy.OpUpdateMinDeliberationPeriod,
		func() error { return domain.ValidateMinDeliberation(period) },
		func(cfg *domain.GovernanceConfig) map[string]string {
			attrs := map[string]string{
				"field": "min_deliberation_period",
				"old":   cfg.MinDeliberationPeriod.String(),
				"new":   period.String(),
			}
			cfg.MinDeliberationPeriod = period
			return attrs
		})
}

// UpdateMaxActiveProposals replaces the admission cap. Admin only. The cap
// cannot drop below the number of proposals currently Active.
func (e *Engine) UpdateMaxActiveProposals(ctx context.Context, caller common.Address, limit uint32) error {
	err := e.observe(ctx, policy.OpUpdateMaxActiveProposals, caller, func(ctx context.Context) error {
		return e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := e.access.Require(ctx, caller, policy.OpUpdateMaxActiveProposals); err != nil {
				return err
			}
			if err := domain.ValidateMaxActive(limit); err != nil {
				return err
			}
			state, err := loadState(ctx, tx)
			if err != nil {
				return err
			}
			if limit < state.ActiveProposals {
				return domain.InvalidConfig("max active proposals", "below current active count")
			}
			old := state.Config.MaxActiveProposals
			state.Config.MaxActiveProposals = limit
			return e.commitConfig(ctx, tx, caller, state, map[string]string{
				"field": "max_active_proposals",
				"old":   strconv.FormatUint(uint64(old), 10),
				"new":   strconv.FormatUint(uint64(limit), 10),
			})
		})
	})
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "governance config updated", "caller", caller.Hex(), "field", "max_active_proposals")
	return nil
}

func (e *Engine) updateConfig(
	ctx context.Context,
	caller common.Address,
	op policy.Operation,
	validate func() error,
	apply func(cfg *domain.GovernanceConfig) map[string]string,
) error {
	var field string
	err := e.observe(ctx, op, caller, func(ctx context.Context) error {
		return e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := e.access.Require(ctx, caller, op); err != nil {
				return err
			}
			if err := validate(); err != nil {
				return err
			}
			state, err := loadState(ctx, tx)
			if err != nil {
				return err
			}
			attrs := apply(&state.Config)
			field = attrs["field"]
			return e.commitConfig(ctx, tx, caller, state, attrs)
		})
	})
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "governance config updated", "caller", caller.Hex(), "field", field)
	return nil
}

func (e *Engine) commitConfig(ctx context.Context, tx storage.Tx, caller common.Address, state domain.GovernanceState, attrs map[string]string) error {
	if err := tx.PutGovernanceState(ctx, state); err != nil {
		return err
	}
	_, err := tx.Emit(ctx, domain.Event{
		Kind:       domain.EventConfigUpdated,
		At:         e.clock.Now(),
		Actor:      caller,
		Attributes: attrs,
	})
	return err
}

// AddBoardMember grants the board capability to member. Admin only.
func (e *Engine) AddBoardMember(ctx context.Context, caller, member common.Address) error {
	return e.changeBoard(ctx, caller, member, true)
}

// RemoveBoardMember revokes the board capability from member. Admin only.
func (e *Engine) RemoveBoardMember(ctx context.Context, caller, member common.Address) error {
	return e.changeBoard(ctx, caller, member, false)
}

func (e *Engine) changeBoard(ctx context.Context, caller, member common.Address, add bool) error {
	op, action := policy.OpRemoveBoardMember, "removed"
	if add {
		op, action = policy.OpAddBoardMember, "added"
	}
	err := e.observe(ctx, op, caller, func(ctx context.Context) error {
		return e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := e.access.Require(ctx, caller, op); err != nil {
				return err
			}
			if domain.IsZeroAddress(member) {
				return domain.ErrZeroAddress
			}
			grant := domain.Grant{Identity: member, Capability: domain.CapabilityBoard}
			if add {
				added, err := e.access.Grant(ctx, grant)
				if err != nil {
					return err
				}
				if !added {
					return domain.ErrAlreadyBoardMember
				}
			} else {
				removed, err := e.access.Revoke(ctx, grant)
				if err != nil {
					return err
				}
				if !removed {
					return domain.ErrNotBoardMember
				}
			}
			_, err := tx.Emit(ctx, domain.Event{
				Kind:       domain.EventBoardMembershipChanged,
				At:         e.clock.Now(),
				Actor:      caller,
				Attributes: map[string]string{"member": member.Hex(), "action": action},
			})
			return err
		})
	})
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "board membership changed", "member", member.Hex(), "action", action)
	return nil
}

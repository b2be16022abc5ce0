package domain

import "time"

// Bounds enforced on the governance configuration.
const (
	MinStandardPeriod  = 24 * time.Hour
	MinEmergencyPeriod = 4 * time.Hour
	MaxEmergencyPeriod = 7 * 24 * time.Hour
	// MaxVotingPeriod caps the standard period.
	MaxVotingPeriod = 28 * 24 * time.Hour

	MinQuorumBps uint32 = 1
	MaxQuorumBps uint32 = 3000

	// BpsDenominator is 100% expressed in basis points.
	BpsDenominator = 10000
)

// GovernanceConfig is the admin-mutable configuration singleton.
type GovernanceConfig struct {
	StandardPeriod        time.Duration `json:"standard_period" yaml:"standard_period"`
	EmergencyPeriod       time.Duration `json:"emergency_period" yaml:"emergency_period"`
	BaseQuorumBps         uint32        `json:"base_quorum_bps" yaml:"base_quorum_bps"`
	MinDeliberationPeriod time.Duration `json:"min_deliberation_period" yaml:"min_deliberation_period"`
	MaxActiveProposals    uint32        `json:"max_active_proposals" yaml:"max_active_proposals"`
}

// DefaultGovernanceConfig returns the configuration a fresh registry starts with.
func DefaultGovernanceConfig() GovernanceConfig {
	return GovernanceConfig{
		StandardPeriod:        7 * 24 * time.Hour,
		EmergencyPeriod:       3 * 24 * time.Hour,
		BaseQuorumBps:         500,
		MinDeliberationPeriod: 24 * time.Hour,
		MaxActiveProposals:    10,
	}
}

// VotingPeriod returns the window length for proposals of type t.
func (c GovernanceConfig) VotingPeriod(t ProposalType) time.Duration {
	if t == ProposalEmergency {
		return c.EmergencyPeriod
	}
	return c.StandardPeriod
}

// Validate checks every field against its bounds.
func (c GovernanceConfig) Validate() error {
	if err := ValidateVotingPeriods(c.StandardPeriod, c.EmergencyPeriod); err != nil {
		return err
	}
	if err := ValidateBaseQuorum(c.BaseQuorumBps); err != nil {
		return err
	}
	if err := ValidateMinDeliberation(c.MinDeliberationPeriod); err != nil {
		return err
	}
	return ValidateMaxActive(c.MaxActiveProposals)
}

// ValidateVotingPeriods checks a standard/emergency period pair.
func ValidateVotingPeriods(standard, emergency time.Duration) error {
	switch {
	case standard < MinStandardPeriod:
		return InvalidConfig("standard period", "too short")
	case emergency < MinEmergencyPeriod:
		return InvalidConfig("emergency period", "too short")
	case standard <= emergency:
		return InvalidConfig("standard period", "must be longer than emergency")
	case standard > MaxVotingPeriod:
		return InvalidConfig("standard period", "too long")
	case emergency > MaxEmergencyPeriod:
		return InvalidConfig("emergency period", "too long")
	}
	return nil
}

// ValidateBaseQuorum checks the base quorum lies in [MinQuorumBps, MaxQuorumBps].
func ValidateBaseQuorum(bps uint32) error {
	if bps < MinQuorumBps || bps > MaxQuorumBps {
		return InvalidConfig("base quorum", "out of range")
	}
	return nil
}

// ValidateMinDeliberation requires a positive deliberation period.
func ValidateMinDeliberation(d time.Duration) error {
	if d <= 0 {
		return InvalidConfig("min deliberation period", "must be positive")
	}
	return nil
}

// ValidateMaxActive requires a positive admission cap.
func ValidateMaxActive(n uint32) error {
	if n == 0 {
		return InvalidConfig("max active proposals", "must be positive")
	}
	return nil
}

// GovernanceState is the persisted singleton: configuration plus the derived
// counters the registry maintains.
type GovernanceState struct {
	Config          GovernanceConfig `json:"config"`
	ActiveProposals uint32           `json:"active_proposals"`
	NextSequence    uint64           `json:"next_sequence"`
}

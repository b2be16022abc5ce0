package governance

import (
	"math/big"

	"github.com/agoradao/agora/pkg/domain"
)

var bps = big.NewInt(domain.BpsDenominator)

// Quorum band edges, as a share of the treasury balance in basis points.
const (
	smallAskBps  = 1000
	mediumAskBps = 3000
	largeAskBps  = 5000
)

// RatioBps returns floor(amount * 10000 / balance). balance must be positive.
func RatioBps(amount, balance *big.Int) *big.Int {
	ratio := new(big.Int).Mul(amount, bps)
	return ratio.Quo(ratio, balance)
}

// DynamicQuorum returns the participation, in basis points, a proposal asking
// for amount out of balance must reach.
func DynamicQuorum(amount, balance *big.Int, baseBps uint32) uint32 {
	if balance == nil || balance.Sign() <= 0 {
		return baseBps
	}
	ratio := RatioBps(domain.CloneInt(amount), balance)
	if ratio.Cmp(big.NewInt(largeAskBps)) >= 0 {
		return domain.MaxQuorumBps
	}
	r := uint32(ratio.Uint64())
	switch {
	case r < smallAskBps:
		return baseBps
	case r < mediumAskBps:
		return baseBps + r/10
	default:
		return baseBps + r/5
	}
}

// ParticipationBps returns floor(votes * 10000 / supply). supply must be positive.
func ParticipationBps(votes, supply *big.Int) *big.Int {
	p := new(big.Int).Mul(votes, bps)
	return p.Quo(p, supply)
}

// Outcome decides the status an Active proposal finalizes to.
func Outcome(p domain.Proposal, supply *big.Int, quorumBps uint32) domain.ProposalStatus {
	participation := ParticipationBps(p.TotalVotes(), supply)
	if participation.Cmp(new(big.Int).SetUint64(uint64(quorumBps))) >= 0 &&
		domain.CloneInt(p.VotesFor).Cmp(domain.CloneInt(p.VotesAgainst)) > 0 {
		return domain.StatusApproved
	}
	return domain.StatusRejected
}

package governance

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/agoradao/agora/pkg/domain"
)

func TestDynamicQuorum(t *testing.T) {
	balance := big.NewInt(10000)
	tests := []struct {
		name    string
		amount  int64
		balance *big.Int
		want    uint32
	}{
		{"5% ask", 500, balance, 500},
		{"just under 10%", 999, balance, 500},
		{"10% ask", 1000, balance, 600},
		{"20% ask", 2000, balance, 700},
		{"just under 30%", 2999, balance, 799},
		{"30% ask", 3000, balance, 1100},
		{"one third", 3333, balance, 1166},
		{"just under half", 4999, balance, 1499},
		{"half", 5000, balance, 3000},
		{"everything", 10000, balance, 3000},
		{"empty treasury", 10, new(big.Int), 500},
		{"nil balance", 10, nil, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DynamicQuorum(big.NewInt(tt.amount), tt.balance, 500))
		})
	}
}

func TestDynamicQuorum_LargeValues(t *testing.T) {
	ether := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	balance := new(big.Int).Mul(big.NewInt(1_000_000), ether)
	amount := new(big.Int).Mul(big.NewInt(250_000), ether)
	assert.Equal(t, uint32(750), DynamicQuorum(amount, balance, 500))
}

func TestOutcome(t *testing.T) {
	proposal := func(votesFor, against int64) domain.Proposal {
		return domain.Proposal{VotesFor: big.NewInt(votesFor), VotesAgainst: big.NewInt(against)}
	}
	supply := big.NewInt(10000)

	assert.Equal(t, domain.StatusApproved, Outcome(proposal(400, 100), supply, 500))
	assert.Equal(t, domain.StatusRejected, Outcome(proposal(400, 99), supply, 500), "participation below quorum")
	assert.Equal(t, domain.StatusRejected, Outcome(proposal(300, 300), supply, 500), "tie")
	assert.Equal(t, domain.StatusRejected, Outcome(proposal(100, 900), supply, 500))
	assert.Equal(t, domain.StatusApproved, Outcome(proposal(1, 0), big.NewInt(1), 3000))
}

func TestParticipationBps(t *testing.T) {
	assert.Equal(t, int64(3333), ParticipationBps(big.NewInt(1), big.NewInt(3)).Int64())
	assert.Equal(t, int64(10000), ParticipationBps(big.NewInt(7), big.NewInt(7)).Int64())
}

func TestProposalID(t *testing.T) {
	proposer := common.HexToAddress("0x0000000000000000000000000000000000000d01")
	at := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)

	id := ProposalID(proposer, 3, at)
	assert.Equal(t, id, ProposalID(proposer, 3, at))
	assert.NotEqual(t, id, ProposalID(proposer, 4, at))
	assert.NotEqual(t, id, ProposalID(proposer, 3, at.Add(time.Nanosecond)))
	assert.NotEqual(t, id, ProposalID(common.HexToAddress("0x01"), 3, at))
	assert.NotEqual(t, common.Hash{}, id)
}

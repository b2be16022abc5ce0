package api

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/agoradao/agora/pkg/domain"
)

// Amounts travel as base-10 strings so clients never lose precision.

type proposalRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Recipient   string `json:"recipient"`
}

type voteRequest struct {
	Support string `json:"support"`
	Weight  string `json:"weight"`
}

type vetoRequest struct {
	Reason string `json:"reason"`
}

type cleanupRequest struct {
	IDs []string `json:"ids"`
}

type votingPeriodsRequest struct {
	Standard  string `json:"standard"`
	Emergency string `json:"emergency"`
}

type baseQuorumRequest struct {
	Bps uint32 `json:"bps"`
}

type deliberationRequest struct {
	Period string `json:"period"`
}

type maxActiveRequest struct {
	Limit uint32 `json:"limit"`
}

type memberRequest struct {
	Member string `json:"member"`
}

type depositRequest struct {
	Value string `json:"value"`
}

type priceRequest struct {
	Price string `json:"price"`
}

type proposalView struct {
	ID           string `json:"id"`
	Sequence     uint64 `json:"sequence"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Amount       string `json:"amount"`
	Recipient    string `json:"recipient"`
	Proposer     string `json:"proposer"`
	VotesFor     string `json:"votes_for"`
	VotesAgainst string `json:"votes_against"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Status       string `json:"status"`
	Type         string `json:"type"`
	VetoReason   string `json:"veto_reason,omitempty"`
}

func newProposalView(p domain.Proposal) proposalView {
	return proposalView{
		ID:           p.ID.Hex(),
		Sequence:     p.Sequence,
		Title:        p.Title,
		Description:  p.Description,
		Amount:       amountString(p.Amount),
		Recipient:    p.Recipient.Hex(),
		Proposer:     p.Proposer.Hex(),
		VotesFor:     amountString(p.VotesFor),
		VotesAgainst: amountString(p.VotesAgainst),
		StartTime:    p.StartTime.UTC().Format(time.RFC3339Nano),
		EndTime:      p.EndTime.UTC().Format(time.RFC3339Nano),
		Status:       p.Status.String(),
		Type:         p.Type.String(),
		VetoReason:   p.VetoReason,
	}
}

type voteView struct {
	Voter   string `json:"voter"`
	Voted   bool   `json:"voted"`
	Support string `json:"support"`
	Weight  string `json:"weight"`
}

type configView struct {
	StandardPeriod        string `json:"standard_period"`
	EmergencyPeriod       string `json:"emergency_period"`
	BaseQuorumBps         uint32 `json:"base_quorum_bps"`
	MinDeliberationPeriod string `json:"min_deliberation_period"`
	MaxActiveProposals    uint32 `json:"max_active_proposals"`
}

type stateView struct {
	Config          configView `json:"config"`
	ActiveProposals uint32     `json:"active_proposals"`
	ProposalCount   uint64     `json:"proposal_count"`
}

func newStateView(state domain.GovernanceState) stateView {
	c := state.Config
	return stateView{
		Config: configView{
			StandardPeriod:        c.StandardPeriod.String(),
			EmergencyPeriod:       c.EmergencyPeriod.String(),
			BaseQuorumBps:         c.BaseQuorumBps,
			MinDeliberationPeriod: c.MinDeliberationPeriod.String(),
			MaxActiveProposals:    c.MaxActiveProposals,
		},
		ActiveProposals: state.ActiveProposals,
		ProposalCount:   state.NextSequence,
	}
}

type depositView struct {
	Value       string `json:"value"`
	Denominated string `json:"denominated"`
	Weight      string `json:"weight"`
}

type treasuryView struct {
	Balance string `json:"balance"`
	Price   string `json:"price"`
}

type accountView struct {
	Account string `json:"account"`
	Weight  string `json:"weight"`
	Donor   bool   `json:"donor"`
	Payout  string `json:"payout,omitempty"`
}

type eventView struct {
	Seq        uint64            `json:"seq"`
	Kind       string            `json:"kind"`
	At         string            `json:"at"`
	ProposalID string            `json:"proposal_id,omitempty"`
	Actor      string            `json:"actor"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func newEventView(e domain.Event) eventView {
	v := eventView{
		Seq:        e.Seq,
		Kind:       string(e.Kind),
		At:         e.At.UTC().Format(time.RFC3339Nano),
		Actor:      e.Actor.Hex(),
		Attributes: e.Attributes,
	}
	if e.ProposalID != (common.Hash{}) {
		v.ProposalID = e.ProposalID.Hex()
	}
	return v
}

func amountString(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, invalid(fmt.Errorf("%s: %q is not a hex address", field, value))
	}
	return common.HexToAddress(value), nil
}

func parseProposalID(value string) (common.Hash, error) {
	b, err := hexutil.Decode(value)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, invalid(fmt.Errorf("proposal id: %q is not a 32-byte hex hash", value))
	}
	return common.BytesToHash(b), nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, invalid(fmt.Errorf("%s: %w", field, err))
	}
	return d, nil
}

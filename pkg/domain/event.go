package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names an observable side effect.
type EventKind string

const (
	EventProposalCreated        EventKind = "proposal.created"
	EventVoteCast               EventKind = "proposal.vote_cast"
	EventProposalFinalized      EventKind = "proposal.finalized"
	EventProposalExecuted       EventKind = "proposal.executed"
	EventProposalVetoed         EventKind = "proposal.vetoed"
	EventProposalsExpired       EventKind = "proposals.expired"
	EventConfigUpdated          EventKind = "governance.config_updated"
	EventBoardMembershipChanged EventKind = "governance.board_changed"
	EventDepositRecorded        EventKind = "treasury.deposit_recorded"
	EventFundsTransferred       EventKind = "treasury.funds_transferred"
	EventPriceUpdated           EventKind = "treasury.price_updated"
	EventBindingSet             EventKind = "binding.set"
)

// Event is one entry of the append-only observation log. Seq is assigned by
// the store when the event is journaled.
type Event struct {
	Seq        uint64            `json:"seq"`
	Kind       EventKind         `json:"kind"`
	At         time.Time         `json:"at"`
	ProposalID common.Hash       `json:"proposal_id"`
	Actor      common.Address    `json:"actor"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Clone returns a copy that does not share the attribute map.
func (e Event) Clone() Event {
	if e.Attributes != nil {
		attrs := make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			attrs[k] = v
		}
		e.Attributes = attrs
	}
	return e
}

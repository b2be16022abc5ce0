package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Text limits for proposal fields, counted in Unicode code points.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 1000
)

// ProposalStatus is the lifecycle state of a proposal.
type ProposalStatus uint8

const (
	// StatusActive proposals accept votes and count against the admission cap.
	StatusActive ProposalStatus = iota
	// StatusApproved proposals met quorum and majority and await execution or veto.
	StatusApproved
	// StatusRejected proposals failed quorum or majority.
	StatusRejected
	// StatusExecuted proposals had their funds released.
	StatusExecuted
	// StatusVetoed proposals were blocked by the board after approval.
	StatusVetoed
	// StatusExpired proposals lapsed without a single vote.
	StatusExpired
)

var statusNames = [...]string{"active", "approved", "rejected", "executed", "vetoed", "expired"}

func (s ProposalStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", s)
}

// Terminal reports whether no further transition can leave s.
func (s ProposalStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusExecuted, StatusVetoed, StatusExpired:
		return true
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ProposalStatus) MarshalText() ([]byte, error) {
	if int(s) >= len(statusNames) {
		return nil, fmt.Errorf("unknown proposal status %d", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ProposalStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseProposalStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseProposalStatus converts a status name back to its value.
func ParseProposalStatus(name string) (ProposalStatus, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range statusNames {
		if candidate == name {
			return ProposalStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown proposal status %q", name)
}

// ProposalType selects the voting period a proposal runs under.
type ProposalType uint8

const (
	// ProposalStandard proposals are created by donors.
	ProposalStandard ProposalType = iota
	// ProposalEmergency proposals are created by board members and use the shorter period.
	ProposalEmergency
)

func (t ProposalType) String() string {
	switch t {
	case ProposalStandard:
		return "standard"
	case ProposalEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("type(%d)", t)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t ProposalType) MarshalText() ([]byte, error) {
	if t > ProposalEmergency {
		return nil, fmt.Errorf("unknown proposal type %d", t)
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ProposalType) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "standard":
		*t = ProposalStandard
	case "emergency":
		*t = ProposalEmergency
	default:
		return fmt.Errorf("unknown proposal type %q", text)
	}
	return nil
}

// Support is the side a vote was cast for.
type Support uint8

const (
	SupportNone Support = iota
	SupportFor
	SupportAgainst
)

func (s Support) String() string {
	switch s {
	case SupportNone:
		return "none"
	case SupportFor:
		return "for"
	case SupportAgainst:
		return "against"
	default:
		return fmt.Sprintf("support(%d)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Support) MarshalText() ([]byte, error) {
	if s > SupportAgainst {
		return nil, ErrInvalidSupport
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Support) UnmarshalText(text []byte) error {
	parsed, err := ParseSupport(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSupport accepts "for", "against" or "none".
func ParseSupport(value string) (Support, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "none", "":
		return SupportNone, nil
	case "for":
		return SupportFor, nil
	case "against":
		return SupportAgainst, nil
	default:
		return SupportNone, fmt.Errorf("%w: %q", ErrInvalidSupport, value)
	}
}

// Proposal is a request to release treasury funds to a recipient.
type Proposal struct {
	ID           common.Hash    `json:"id"`
	Sequence     uint64         `json:"sequence"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Amount       *big.Int       `json:"amount"`
	Recipient    common.Address `json:"recipient"`
	Proposer     common.Address `json:"proposer"`
	VotesFor     *big.Int       `json:"votes_for"`
	VotesAgainst *big.Int       `json:"votes_against"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	Status       ProposalStatus `json:"status"`
	Type         ProposalType   `json:"type"`
	VetoReason   string         `json:"veto_reason,omitempty"`
}

// Clone returns a deep copy so callers never share big.Int values with storage.
func (p Proposal) Clone() Proposal {
	p.Amount = CloneInt(p.Amount)
	p.VotesFor = CloneInt(p.VotesFor)
	p.VotesAgainst = CloneInt(p.VotesAgainst)
	return p
}

// TotalVotes is the weight cast for and against combined.
func (p Proposal) TotalVotes() *big.Int {
	return new(big.Int).Add(orZero(p.VotesFor), orZero(p.VotesAgainst))
}

// VotingOpen reports whether now is still inside the voting window.
func (p Proposal) VotingOpen(now time.Time) bool {
	return !now.After(p.EndTime)
}

// Vote is the record of one voter on one proposal. Once Support is not
// SupportNone the record never changes.
type Vote struct {
	Support Support  `json:"support"`
	Weight  *big.Int `json:"weight"`
}

// Clone returns a deep copy of the vote.
func (v Vote) Clone() Vote {
	v.Weight = CloneInt(v.Weight)
	return v
}

// Cast reports whether the vote record holds a vote.
func (v Vote) Cast() bool {
	return v.Support != SupportNone
}

package domain

import "github.com/ethereum/go-ethereum/common"

// Capability is a tag granted to an identity and checked per operation.
type Capability string

const (
	// CapabilityAdmin may change configuration, roles and the treasury price.
	CapabilityAdmin Capability = "admin"
	// CapabilityBoard may create emergency proposals and veto approved ones.
	CapabilityBoard Capability = "board"
	// CapabilityDonor is derived from the treasury donor flags, never granted directly.
	CapabilityDonor Capability = "donor"
)

// Grant is one row of the authorization table.
type Grant struct {
	Identity   common.Address `json:"identity"`
	Capability Capability     `json:"capability"`
}

// IsZeroAddress reports whether addr is the zero (null) identity.
func IsZeroAddress(addr common.Address) bool {
	return addr == (common.Address{})
}

// Package governance implements the proposal registry and its state machine.
//
// A proposal is admitted Active, collects weight-burning votes until its
// window closes, and is then finalized to Approved or Rejected against a
// quorum that grows with the share of the treasury it asks for. Approved
// proposals are either executed, which releases treasury funds, or vetoed by
// the board. Active proposals nobody voted on can be expired to reclaim their
// admission slot.
//
// Every exported mutating method runs as one storage unit of work: the ledger
// burn, the treasury release and the registry update commit together or not
// at all.
package governance

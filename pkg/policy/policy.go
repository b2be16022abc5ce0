package policy

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoradao/agora/pkg/domain"
)

// Operation names a public operation as the authorization table knows it.
type Operation string

const (
	OpCreateProposal              Operation = "createProposal"
	OpCreateEmergencyProposal     Operation = "createEmergencyProposal"
	OpCastVote                    Operation = "castVote"
	OpFinalizeProposal            Operation = "finalizeProposal"
	OpExecuteProposal             Operation = "executeProposal"
	OpVetoProposal                Operation = "vetoProposal"
	OpCleanupExpiredProposals     Operation = "cleanupExpiredProposals"
	OpUpdateVotingPeriods         Operation = "updateVotingPeriods"
	OpUpdateBaseQuorum            Operation = "updateBaseQuorum"
	OpUpdateMinDeliberationPeriod Operation = "updateMinDeliberationPeriod"
	OpUpdateMaxActiveProposals    Operation = "updateMaxActiveProposals"
	OpAddBoardMember              Operation = "addBoardMember"
	OpRemoveBoardMember           Operation = "removeBoardMember"
	OpDeposit                     Operation = "deposit"
	OpUpdatePrice                 Operation = "updatePrice"
)

// Input is the document a decision is evaluated against.
type Input struct {
	Operation    Operation
	Identity     common.Address
	Capabilities []domain.Capability
}

// Decision is the outcome of an authorization check. Required names the
// capability the operation needs; it is empty for public operations.
type Decision struct {
	Allow    bool
	Required domain.Capability
	Reason   string
}

// Authorizer decides whether an identity may run an operation.
type Authorizer interface {
	Authorize(ctx context.Context, input Input) (Decision, error)
}

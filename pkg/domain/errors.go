package domain

import (
	"errors"
	"fmt"
)

// Admission errors.
var (
	ErrNotDonor           = errors.New("only donors can create proposals")
	ErrTitleEmpty         = errors.New("title cannot be empty")
	ErrTitleTooLong       = errors.New("title too long")
	ErrDescriptionEmpty   = errors.New("description cannot be empty")
	ErrDescriptionTooLong = errors.New("description too long")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrZeroAddress        = errors.New("address cannot be zero")
	ErrMaxActiveReached   = errors.New("max active proposals reached")
)

// Timing errors.
var (
	ErrVotingEnded        = errors.New("voting period has ended")
	ErrVotingInProgress   = errors.New("voting still in progress")
	ErrDeliberationNotMet = errors.New("minimum deliberation period not met")
)

// State errors.
var (
	ErrProposalNotFound   = errors.New("proposal not found")
	ErrProposalNotActive  = errors.New("proposal is not active")
	ErrAlreadyVoted       = errors.New("already voted on this proposal")
	ErrNotApproved        = errors.New("proposal is not approved")
	ErrReasonEmpty        = errors.New("reason cannot be empty")
	ErrAlreadyBoardMember = errors.New("already a board member")
	ErrNotBoardMember     = errors.New("not a board member")
	ErrAlreadyBound       = errors.New("address already set")
	ErrNotBound           = errors.New("address not set")
	ErrInvalidSupport     = errors.New("invalid vote support")
)

// Resource errors.
var (
	ErrZeroWeight            = errors.New("vote amount must be positive")
	ErrInsufficientWeight    = errors.New("insufficient voting weight")
	ErrInsufficientFunds     = errors.New("insufficient funds in treasury")
	ErrNoWeightInCirculation = errors.New("no weight in circulation")
	ErrZeroDeposit           = errors.New("donation must be greater than 0")
	ErrZeroValue             = errors.New("value must be positive")
	ErrBurnExceedsBalance    = errors.New("burn amount exceeds balance")
)

// Access and configuration errors.
var (
	ErrUnauthorized  = errors.New("caller is not authorized")
	ErrConfigInvalid = errors.New("invalid configuration")
)

// DomainError wraps errors with additional context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Unauthorized builds the error returned when account lacks the capability
// an operation requires.
func Unauthorized(account fmt.Stringer, operation string, required Capability) error {
	return &DomainError{
		Err:     ErrUnauthorized,
		Code:    "UNAUTHORIZED",
		Message: fmt.Sprintf("account %s is missing capability %q for %s", account, required, operation),
		Details: map[string]any{
			"account":    account.String(),
			"operation":  operation,
			"capability": string(required),
		},
	}
}

// NotOwner builds the error returned when account calls an owner-only
// operation of component.
func NotOwner(account fmt.Stringer, component string) error {
	return &DomainError{
		Err:     ErrUnauthorized,
		Code:    "UNAUTHORIZED",
		Message: fmt.Sprintf("account %s is not the %s owner", account, component),
		Details: map[string]any{"account": account.String(), "component": component},
	}
}

// InvalidConfig wraps ErrConfigInvalid with the reason a value was rejected.
func InvalidConfig(field, reason string) error {
	return &DomainError{
		Err:     ErrConfigInvalid,
		Code:    "INVALID_CONFIG",
		Message: fmt.Sprintf("invalid configuration: %s %s", field, reason),
		Details: map[string]any{"field": field},
	}
}

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotDonor, "NOT_DONOR"},
	{ErrTitleEmpty, "TITLE_EMPTY"},
	{ErrTitleTooLong, "TITLE_TOO_LONG"},
	{ErrDescriptionEmpty, "DESCRIPTION_EMPTY"},
	{ErrDescriptionTooLong, "DESCRIPTION_TOO_LONG"},
	{ErrInvalidAmount, "INVALID_AMOUNT"},
	{ErrZeroAddress, "ZERO_ADDRESS"},
	{ErrMaxActiveReached, "MAX_ACTIVE_REACHED"},
	{ErrVotingEnded, "VOTING_ENDED"},
	{ErrVotingInProgress, "VOTING_IN_PROGRESS"},
	{ErrDeliberationNotMet, "DELIBERATION_NOT_MET"},
	{ErrProposalNotFound, "PROPOSAL_NOT_FOUND"},
	{ErrProposalNotActive, "PROPOSAL_NOT_ACTIVE"},
	{ErrAlreadyVoted, "ALREADY_VOTED"},
	{ErrNotApproved, "NOT_APPROVED"},
	{ErrReasonEmpty, "REASON_EMPTY"},
	{ErrAlreadyBoardMember, "ALREADY_BOARD_MEMBER"},
	{ErrNotBoardMember, "NOT_BOARD_MEMBER"},
	{ErrAlreadyBound, "ALREADY_BOUND"},
	{ErrNotBound, "NOT_BOUND"},
	{ErrInvalidSupport, "INVALID_SUPPORT"},
	{ErrZeroWeight, "ZERO_WEIGHT"},
	{ErrInsufficientWeight, "INSUFFICIENT_WEIGHT"},
	{ErrInsufficientFunds, "INSUFFICIENT_FUNDS"},
	{ErrNoWeightInCirculation, "NO_WEIGHT_IN_CIRCULATION"},
	{ErrZeroDeposit, "ZERO_DEPOSIT"},
	{ErrZeroValue, "ZERO_VALUE"},
	{ErrBurnExceedsBalance, "BURN_EXCEEDS_BALANCE"},
	{ErrUnauthorized, "UNAUTHORIZED"},
	{ErrConfigInvalid, "INVALID_CONFIG"},
}

// Code returns the stable machine-readable code for err, or "INTERNAL" when
// err is not a domain error.
func Code(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "INTERNAL"
}

// ErrorResponse defines the standard JSON error model returned by the API.
// TraceID should carry the current OpenTelemetry trace identifier when available to aid diagnostics.
type ErrorResponse struct {
	Code    string         `json:"code"`               // Machine-readable error code (e.g., NOT_DONOR, VOTING_ENDED)
	Message string         `json:"message"`            // Human-readable message (safe for logs)
	Details map[string]any `json:"details,omitempty"`  // Optional structured context
	TraceID string         `json:"trace_id,omitempty"` // Optional trace/correlation ID
}

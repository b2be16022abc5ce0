// Package api exposes the governance engine and the treasury over HTTP/JSON.
//
// Mutating routes act as the identity named by the X-Agora-Caller header and
// are throttled per caller. Read-only routes need no caller. Domain errors map
// to stable status codes and a domain.ErrorResponse body.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoradao/agora/internal/ratelimit"
	"github.com/agoradao/agora/pkg/governance"
	"github.com/agoradao/agora/pkg/treasury"
)

const maxBodyBytes = 1 << 20

// Treasury is the custody surface the API drives.
type Treasury interface {
	Deposit(ctx context.Context, donor common.Address, value *big.Int) (treasury.DepositReceipt, error)
	UpdatePrice(ctx context.Context, caller common.Address, price *big.Int) error
	Balance(ctx context.Context) (*big.Int, error)
	Price(ctx context.Context) (*big.Int, error)
	IsDonor(ctx context.Context, account common.Address) (bool, error)
}

// Weights reads voting weight balances.
type Weights interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// Payouts reads the value credited to recipients by executed proposals.
type Payouts interface {
	Payout(ctx context.Context, account common.Address) (*big.Int, error)
}

// Options configures a Server.
type Options struct {
	Governance *governance.Engine
	Treasury   Treasury
	Weights    Weights
	// Payouts is optional; account views omit the payout when nil.
	Payouts Payouts
	// Limiter throttles mutating routes. Nil disables throttling.
	Limiter *ratelimit.Limiter
	// Metrics defaults to a fresh registry.
	Metrics *Metrics
	Logger  *slog.Logger
}

// Server routes HTTP requests to the engine.
type Server struct {
	gov      *governance.Engine
	treasury Treasury
	weights  Weights
	payouts  Payouts
	limiter  *ratelimit.Limiter
	metrics  *Metrics
	logger   *slog.Logger
	handler  http.Handler
}

// New validates opts and builds the route table.
func New(opts Options) (*Server, error) {
	switch {
	case opts.Governance == nil:
		return nil, errors.New("api: governance engine is required")
	case opts.Treasury == nil:
		return nil, errors.New("api: treasury is required")
	case opts.Weights == nil:
		return nil, errors.New("api: weights are required")
	}
	s := &Server{
		gov:      opts.Governance,
		treasury: opts.Treasury,
		weights:  opts.Weights,
		payouts:  opts.Payouts,
		limiter:  opts.Limiter,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	mux := http.NewServeMux()
	s.routes(mux)
	s.handler = withRequestID(withAccessLog(s.logger, s.metrics.Middleware(mux)))
	return s, nil
}

// Handler returns the fully wrapped route table.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Metrics returns the server's instruments.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /v1/proposals", s.mutating(s.handleCreateProposal))
	mux.HandleFunc("POST /v1/proposals/emergency", s.mutating(s.handleCreateEmergencyProposal))
	mux.HandleFunc("POST /v1/proposals/cleanup", s.mutating(s.handleCleanup))
	mux.HandleFunc("GET /v1/proposals", s.handleListProposals)
	mux.HandleFunc("GET /v1/proposals/active", s.handleActiveProposals)
	mux.HandleFunc("GET /v1/proposals/count", s.handleProposalCount)
	mux.HandleFunc("GET /v1/proposals/{id}", s.handleProposalDetails)
	mux.HandleFunc("GET /v1/proposals/{id}/quorum", s.handleDynamicQuorum)
	mux.HandleFunc("GET /v1/proposals/{id}/votes/{voter}", s.handleVoteInfo)
	mux.HandleFunc("POST /v1/proposals/{id}/votes", s.mutating(s.handleCastVote))
	mux.HandleFunc("POST /v1/proposals/{id}/finalize", s.mutating(s.handleFinalize))
	mux.HandleFunc("POST /v1/proposals/{id}/execute", s.mutating(s.handleExecute))
	mux.HandleFunc("POST /v1/proposals/{id}/veto", s.mutating(s.handleVeto))

	mux.HandleFunc("GET /v1/governance", s.handleGovernanceState)
	mux.HandleFunc("PUT /v1/governance/voting-periods", s.mutating(s.handleUpdateVotingPeriods))
	mux.HandleFunc("PUT /v1/governance/base-quorum", s.mutating(s.handleUpdateBaseQuorum))
	mux.HandleFunc("PUT /v1/governance/min-deliberation", s.mutating(s.handleUpdateMinDeliberation))
	mux.HandleFunc("PUT /v1/governance/max-active", s.mutating(s.handleUpdateMaxActive))
	mux.HandleFunc("GET /v1/governance/board", s.handleBoardMembers)
	mux.HandleFunc("POST /v1/governance/board", s.mutating(s.handleAddBoardMember))
	mux.HandleFunc("DELETE /v1/governance/board/{member}", s.mutating(s.handleRemoveBoardMember))

	mux.HandleFunc("GET /v1/treasury", s.handleTreasury)
	mux.HandleFunc("POST /v1/treasury/deposits", s.mutating(s.handleDeposit))
	mux.HandleFunc("PUT /v1/treasury/price", s.mutating(s.handleUpdatePrice))
	mux.HandleFunc("GET /v1/accounts/{account}", s.handleAccount)

	mux.HandleFunc("GET /v1/events", s.handleEvents)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid(fmt.Errorf("decode request body: %w", err))
	}
	return nil
}

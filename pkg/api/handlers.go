package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/governance"
	"github.com/agoradao/agora/pkg/storage"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.gov.State(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func proposalInput(req proposalRequest) (governance.ProposalInput, error) {
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return governance.ProposalInput{}, err
	}
	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		return governance.ProposalInput{}, err
	}
	return governance.ProposalInput{
		Title:       req.Title,
		Description: req.Description,
		Amount:      amount,
		Recipient:   recipient,
	}, nil
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request, caller common.Address) {
	s.create(w, r, caller, s.gov.CreateProposal)
}

func (s *Server) handleCreateEmergencyProposal(w http.ResponseWriter, r *http.Request, caller common.Address) {
	s.create(w, r, caller, s.gov.CreateEmergencyProposal)
}

func (s *Server) create(
	w http.ResponseWriter,
	r *http.Request,
	caller common.Address,
	fn func(ctx context.Context, caller common.Address, in governance.ProposalInput) (domain.Proposal, error),
) {
	var req proposalRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := proposalInput(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := fn(r.Context(), caller, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/proposals/"+p.ID.Hex())
	writeJSON(w, http.StatusCreated, newProposalView(p))
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request, caller common.Address) {
	id, err := parseProposalID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req voteRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	support, err := domain.ParseSupport(req.Support)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	weight, err := domain.ParseAmount(req.Weight)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.gov.CastVote(r.Context(), caller, id, support, weight); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeProposal(w, r, id, http.StatusOK)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request, caller common.Address) {
	id, err := parseProposalID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.gov.FinalizeProposal(r.Context(), caller, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeProposal(w, r, id, http.StatusOK)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request, caller common.Address) {
	id, err := parseProposalID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.gov.ExecuteProposal(r.Context(), caller, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeProposal(w, r, id, http.StatusOK)
}

func (s *Server) handleVeto(w http.ResponseWriter, r *http.Request, caller common.Address) {
	id, err := parseProposalID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req vetoRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.gov.VetoProposal(r.Context(), caller, id, req.Reason); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeProposal(w, r, id, http.StatusOK)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req cleanupRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ids := make([]common.Hash, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := parseProposalID(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ids = append(ids, id)
	}
	expired, err := s.gov.CleanupExpiredProposals(r.Context(), caller, ids)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"expired": hexes(expired)})
}

func (s *Server) writeProposal(w http.ResponseWriter, r *http.Request, id common.Hash, status int) {
	p, err := s.gov.GetProposalDetails(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, newProposalView(p))
}

func (s *Server) handleProposalDetails(w http.ResponseWriter, r *http.Request) {
	id, err := parseProposalID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeProposal(w, r, id, http.StatusOK)
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	var filter storage.ProposalFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			status, err := domain.ParseProposalStatus(name)
			if err != nil {
				s.writeError(w, r, invalid(err))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	proposals, err := s.gov.ListProposals(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]proposalView, 0, len(proposals))
	for _, p := range proposals {
		views = append(views, newProposalView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": views})
}

func (s *Server) handleActiveProposals(w http.ResponseWriter, r *http.Request) {
	ids, err := s.gov.GetActiveProposals(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ids": hexes(ids)})
}

func (s *Server) handleProposalCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.gov.GetProposalCount(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"count": count})
}

func (s *Server) handleDynamicQuorum(w http.ResponseWriter, r *http.Request) {
	id, err := parseProposalID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bps, err := s.gov.GetDynamicQuorum(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint32{"quorum_bps": bps})
}

func (s *Server) handleVoteInfo(w http.ResponseWriter, r *http.Request) {
	id, err := parseProposalID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	voter, err := parseAddress("voter", r.PathValue("voter"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	vote, err := s.gov.GetVoteInfo(r.Context(), id, voter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, voteView{
		Voter:   voter.Hex(),
		Voted:   vote.Cast(),
		Support: vote.Support.String(),
		Weight:  amountString(vote.Weight),
	})
}

func (s *Server) handleGovernanceState(w http.ResponseWriter, r *http.Request) {
	state, err := s.gov.State(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(state))
}

func (s *Server) handleUpdateVotingPeriods(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req votingPeriodsRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	standard, err := parseDuration("standard", req.Standard)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	emergency, err := parseDuration("emergency", req.Emergency)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeConfigResult(w, r, s.gov.UpdateVotingPeriods(r.Context(), caller, standard, emergency))
}

func (s *Server) handleUpdateBaseQuorum(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req baseQuorumRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeConfigResult(w, r, s.gov.UpdateBaseQuorum(r.Context(), caller, req.Bps))
}

func (s *Server) handleUpdateMinDeliberation(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req deliberationRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	period, err := parseDuration("period", req.Period)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeConfigResult(w, r, s.gov.UpdateMinDeliberationPeriod(r.Context(), caller, period))
}

func (s *Server) handleUpdateMaxActive(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req maxActiveRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeConfigResult(w, r, s.gov.UpdateMaxActiveProposals(r.Context(), caller, req.Limit))
}

func (s *Server) writeConfigResult(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleGovernanceState(w, r)
}

func (s *Server) handleBoardMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.gov.BoardMembers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.Hex())
	}
	writeJSON(w, http.StatusOK, map[string][]string{"members": out})
}

func (s *Server) handleAddBoardMember(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req memberRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	member, err := parseAddress("member", req.Member)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.gov.AddBoardMember(r.Context(), caller, member); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleBoardMembers(w, r)
}

func (s *Server) handleRemoveBoardMember(w http.ResponseWriter, r *http.Request, caller common.Address) {
	member, err := parseAddress("member", r.PathValue("member"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.gov.RemoveBoardMember(r.Context(), caller, member); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleBoardMembers(w, r)
}

func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	balance, err := s.treasury.Balance(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := s.treasury.Price(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, treasuryView{Balance: amountString(balance), Price: amountString(price)})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req depositRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	value, err := domain.ParseAmount(req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.treasury.Deposit(r.Context(), caller, value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, depositView{
		Value:       amountString(receipt.Value),
		Denominated: amountString(receipt.Denominated),
		Weight:      amountString(receipt.Weight),
	})
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req priceRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := domain.ParseAmount(req.Price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.treasury.UpdatePrice(r.Context(), caller, price); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleTreasury(w, r)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", r.PathValue("account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	weight, err := s.weights.BalanceOf(r.Context(), account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	donor, err := s.treasury.IsDonor(r.Context(), account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view := accountView{Account: account.Hex(), Weight: amountString(weight), Donor: donor}
	if s.payouts != nil {
		payout, err := s.payouts.Payout(r.Context(), account)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		view.Payout = amountString(payout)
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var after uint64
	if raw := query.Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, invalid(fmt.Errorf("after: %w", err)))
			return
		}
		after = v
	}
	limit := defaultEventLimit
	if raw := query.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			s.writeError(w, r, invalid(fmt.Errorf("limit: %q is not a positive integer", raw)))
			return
		}
		limit = min(v, maxEventLimit)
	}
	events, err := s.gov.Events(r.Context(), after, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, newEventView(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": views})
}

func hexes(ids []common.Hash) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/agoradao/agora/pkg/domain"
)

var (
	errMissingCaller = errors.New("missing " + CallerHeader + " header")
	errInvalidCaller = errors.New("caller is not a hex address")
	errRateLimited   = errors.New("rate limit exceeded")
)

var statusByError = []struct {
	err    error
	status int
}{
	{domain.ErrNotDonor, http.StatusForbidden},
	{domain.ErrUnauthorized, http.StatusForbidden},
	{domain.ErrProposalNotFound, http.StatusNotFound},

	{domain.ErrVotingEnded, http.StatusConflict},
	{domain.ErrVotingInProgress, http.StatusConflict},
	{domain.ErrDeliberationNotMet, http.StatusConflict},
	{domain.ErrProposalNotActive, http.StatusConflict},
	{domain.ErrAlreadyVoted, http.StatusConflict},
	{domain.ErrNotApproved, http.StatusConflict},
	{domain.ErrMaxActiveReached, http.StatusConflict},
	{domain.ErrAlreadyBoardMember, http.StatusConflict},
	{domain.ErrNotBoardMember, http.StatusConflict},
	{domain.ErrAlreadyBound, http.StatusConflict},
	{domain.ErrNotBound, http.StatusConflict},

	{domain.ErrInsufficientWeight, http.StatusUnprocessableEntity},
	{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	{domain.ErrNoWeightInCirculation, http.StatusUnprocessableEntity},
	{domain.ErrBurnExceedsBalance, http.StatusUnprocessableEntity},

	{domain.ErrTitleEmpty, http.StatusBadRequest},
	{domain.ErrTitleTooLong, http.StatusBadRequest},
	{domain.ErrDescriptionEmpty, http.StatusBadRequest},
	{domain.ErrDescriptionTooLong, http.StatusBadRequest},
	{domain.ErrInvalidAmount, http.StatusBadRequest},
	{domain.ErrZeroAddress, http.StatusBadRequest},
	{domain.ErrInvalidSupport, http.StatusBadRequest},
	{domain.ErrReasonEmpty, http.StatusBadRequest},
	{domain.ErrZeroWeight, http.StatusBadRequest},
	{domain.ErrZeroDeposit, http.StatusBadRequest},
	{domain.ErrZeroValue, http.StatusBadRequest},
	{domain.ErrConfigInvalid, http.StatusBadRequest},
}

// badRequest marks malformed input that never reached the domain layer.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

func invalid(err error) error { return badRequest{err: err} }

// classify maps err to an HTTP status and a response body.
func classify(err error) (int, domain.ErrorResponse) {
	switch {
	case errors.Is(err, errMissingCaller):
		return http.StatusUnauthorized, domain.ErrorResponse{Code: "MISSING_CALLER", Message: err.Error()}
	case errors.Is(err, errInvalidCaller):
		return http.StatusBadRequest, domain.ErrorResponse{Code: "INVALID_CALLER", Message: err.Error()}
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests, domain.ErrorResponse{Code: "RATE_LIMITED", Message: err.Error()}
	}

	resp := domain.ErrorResponse{Code: domain.Code(err), Message: err.Error()}
	var de *domain.DomainError
	if errors.As(err, &de) {
		resp.Details = de.Details
	}
	for _, entry := range statusByError {
		if errors.Is(err, entry.err) {
			return entry.status, resp
		}
	}
	var br badRequest
	if errors.As(err, &br) {
		resp.Code = "BAD_REQUEST"
		return http.StatusBadRequest, resp
	}
	return http.StatusInternalServerError, domain.ErrorResponse{Code: "INTERNAL", Message: "internal error"}
}

func traceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	resp.TraceID = traceID(r.Context())
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
	}
	s.metrics.RecordRejection(routeName(r), resp.Code)
	writeJSON(w, status, resp)
}

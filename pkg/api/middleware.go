package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/agoradao/agora/internal/ratelimit"
)

const (
	// CallerHeader carries the identity a request acts as. Authentication is
	// the job of the gateway in front of the API.
	CallerHeader = "X-Agora-Caller"
	// RequestIDHeader echoes the request correlation id.
	RequestIDHeader = "X-Request-ID"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	callerKey
)

// RequestIDFromContext returns the id assigned by the request id middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// CallerFromContext returns the caller a mutating handler runs as.
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(callerKey).(common.Address)
	return caller, ok
}

// withRequestID reuses a client-supplied UUID or mints a new one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withAccessLog logs each request once it completes.
func withAccessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status_code", wrapped.statusCode),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", RequestIDFromContext(r.Context())),
		}
		if caller := r.Header.Get(CallerHeader); caller != "" {
			attrs = append(attrs, slog.String("caller", caller))
		}
		if id := traceID(r.Context()); id != "" {
			attrs = append(attrs, slog.String("trace_id", id))
		}

		level := slog.LevelDebug
		if wrapped.statusCode >= 400 {
			level = slog.LevelInfo
		}
		if wrapped.statusCode >= 500 {
			level = slog.LevelError
		}
		logger.LogAttrs(r.Context(), level, "HTTP request", attrs...)
	})
}

// callerHandler is a handler that acts on behalf of an identified caller.
type callerHandler func(w http.ResponseWriter, r *http.Request, caller common.Address)

// mutating resolves the caller from CallerHeader and applies the per-caller
// rate limit before running h.
func (s *Server) mutating(h callerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(CallerHeader)
		if raw == "" {
			s.writeError(w, r, errMissingCaller)
			return
		}
		if !common.IsHexAddress(raw) {
			s.writeError(w, r, errInvalidCaller)
			return
		}
		caller := common.HexToAddress(raw)

		if s.limiter.Enabled() {
			decision := s.limiter.Allow(caller.Hex())
			ratelimit.WriteHeaders(w, decision)
			if !decision.Allowed {
				s.metrics.RecordRateLimited(routeName(r))
				s.writeError(w, r, errRateLimited)
				return
			}
		}

		ctx := context.WithValue(r.Context(), callerKey, caller)
		h(w, r.WithContext(ctx), caller)
	}
}

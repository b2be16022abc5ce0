package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/policy"
)

const instrumentationName = "github.com/agoradao/agora"

// StartOperation opens a span named after a public operation.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("agora.operation", operation))
	return otel.Tracer(instrumentationName).Start(ctx, "agora."+operation, trace.WithAttributes(attrs...))
}

// EndOperation records err on span, tagged with its domain code, and ends it.
func EndOperation(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("agora.error.code", domain.Code(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RecordProposal annotates span with the identifying fields of p.
func RecordProposal(span trace.Span, p domain.Proposal) {
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.String("agora.proposal.id", p.ID.Hex()),
		attribute.String("agora.proposal.status", p.Status.String()),
		attribute.String("agora.proposal.type", p.Type.String()),
	)
}

// RecordPolicyDecision annotates span with an authorization outcome.
func RecordPolicyDecision(span trace.Span, decision policy.Decision) {
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.Bool("agora.authz.allow", decision.Allow))
	if decision.Required != "" {
		span.SetAttributes(attribute.String("agora.authz.required", string(decision.Required)))
	}
	if decision.Reason != "" {
		span.SetAttributes(attribute.String("agora.authz.reason", decision.Reason))
	}
}

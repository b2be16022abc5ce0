package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/agoradao/agora/pkg/domain"
)

var (
	metricsOnce          sync.Once
	metricsInitErr       error
	proposalsCreated     metric.Int64Counter
	proposalTransitions  metric.Int64Counter
	votesCast            metric.Int64Counter
	treasuryMovements    metric.Int64Counter
	operationLatency     metric.Float64Histogram
	activeProposalsGauge metric.Int64Gauge
)

// RecordProposalCreated counts a newly admitted proposal.
func RecordProposalCreated(ctx context.Context, kind domain.ProposalType) {
	if err := ensureMetrics(); err != nil {
		return
	}
	proposalsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("proposal.type", kind.String())))
}

// RecordTransition counts n proposals leaving Active or Approved for status.
func RecordTransition(ctx context.Context, status domain.ProposalStatus, n int) {
	if n <= 0 {
		return
	}
	if err := ensureMetrics(); err != nil {
		return
	}
	proposalTransitions.Add(ctx, int64(n), metric.WithAttributes(attribute.String("proposal.status", status.String())))
}

// RecordVote counts a cast vote by side.
func RecordVote(ctx context.Context, support domain.Support) {
	if err := ensureMetrics(); err != nil {
		return
	}
	votesCast.Add(ctx, 1, metric.WithAttributes(attribute.String("vote.support", support.String())))
}

// RecordTreasuryMovement counts deposits and releases.
func RecordTreasuryMovement(ctx context.Context, direction string) {
	if err := ensureMetrics(); err != nil {
		return
	}
	treasuryMovements.Add(ctx, 1, metric.WithAttributes(attribute.String("treasury.direction", direction)))
}

// RecordActiveProposals reports the current admission counter.
func RecordActiveProposals(ctx context.Context, active uint32) {
	if err := ensureMetrics(); err != nil {
		return
	}
	activeProposalsGauge.Record(ctx, int64(active))
}

// RecordOperation observes the latency of a public operation, labelled with
// the domain code of its outcome ("OK" on success).
func RecordOperation(ctx context.Context, operation string, elapsed time.Duration, err error) {
	if err := ensureMetrics(); err != nil {
		return
	}
	outcome := "OK"
	if err != nil {
		outcome = domain.Code(err)
	}
	operationLatency.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(
		attribute.String("agora.operation", operation),
		attribute.String("agora.outcome", outcome),
	))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("agora.governance")

		proposalsCreated, metricsInitErr = meter.Int64Counter(
			"agora.proposals.created_total",
			metric.WithDescription("Proposals admitted, partitioned by type"),
			metric.WithUnit("{proposal}"),
		)
		if metricsInitErr != nil {
			return
		}

		proposalTransitions, metricsInitErr = meter.Int64Counter(
			"agora.proposals.transitions_total",
			metric.WithDescription("Proposal status transitions, partitioned by target status"),
			metric.WithUnit("{proposal}"),
		)
		if metricsInitErr != nil {
			return
		}

		votesCast, metricsInitErr = meter.Int64Counter(
			"agora.votes.cast_total",
			metric.WithDescription("Votes cast, partitioned by support"),
			metric.WithUnit("{vote}"),
		)
		if metricsInitErr != nil {
			return
		}

		treasuryMovements, metricsInitErr = meter.Int64Counter(
			"agora.treasury.movements_total",
			metric.WithDescription("Treasury deposits and releases"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		activeProposalsGauge, metricsInitErr = meter.Int64Gauge(
			"agora.proposals.active",
			metric.WithDescription("Proposals currently counted against the admission cap"),
			metric.WithUnit("{proposal}"),
		)
		if metricsInitErr != nil {
			return
		}

		operationLatency, metricsInitErr = meter.Float64Histogram(
			"agora.operation.duration_ms",
			metric.WithDescription("Observed latency of public operations"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/policy"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func installReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		ResetMetricsForTest()
	})
	ResetMetricsForTest()
	return reader
}

func TestGovernanceMetrics(t *testing.T) {
	ctx := context.Background()
	reader := installReader(t)

	RecordProposalCreated(ctx, domain.ProposalEmergency)
	RecordVote(ctx, domain.SupportFor)
	RecordVote(ctx, domain.SupportFor)
	RecordTransition(ctx, domain.StatusExpired, 3)
	RecordTransition(ctx, domain.StatusApproved, 0)
	RecordTreasuryMovement(ctx, "deposit")
	RecordActiveProposals(ctx, 4)
	RecordOperation(ctx, "castVote", 150*time.Millisecond, domain.ErrAlreadyVoted)

	metrics := collect(t, reader)

	created := metrics["agora.proposals.created_total"].Data.(metricdata.Sum[int64])
	require.Len(t, created.DataPoints, 1)
	assert.Equal(t, int64(1), created.DataPoints[0].Value)
	kind, ok := created.DataPoints[0].Attributes.Value(attribute.Key("proposal.type"))
	require.True(t, ok)
	assert.Equal(t, "emergency", kind.AsString())

	votes := metrics["agora.votes.cast_total"].Data.(metricdata.Sum[int64])
	require.Len(t, votes.DataPoints, 1)
	assert.Equal(t, int64(2), votes.DataPoints[0].Value)

	transitions := metrics["agora.proposals.transitions_total"].Data.(metricdata.Sum[int64])
	require.Len(t, transitions.DataPoints, 1)
	assert.Equal(t, int64(3), transitions.DataPoints[0].Value)

	active := metrics["agora.proposals.active"].Data.(metricdata.Gauge[int64])
	require.Len(t, active.DataPoints, 1)
	assert.Equal(t, int64(4), active.DataPoints[0].Value)

	latency := metrics["agora.operation.duration_ms"].Data.(metricdata.Histogram[float64])
	require.Len(t, latency.DataPoints, 1)
	assert.Equal(t, uint64(1), latency.DataPoints[0].Count)
	assert.Equal(t, float64(150), latency.DataPoints[0].Sum)
	outcome, ok := latency.DataPoints[0].Attributes.Value(attribute.Key("agora.outcome"))
	require.True(t, ok)
	assert.Equal(t, "ALREADY_VOTED", outcome.AsString())
}

func TestOperationSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartOperation(context.Background(), "vetoProposal")
	RecordProposal(span, domain.Proposal{Status: domain.StatusApproved})
	RecordPolicyDecision(span, policy.Decision{Allow: false, Required: domain.CapabilityBoard, Reason: "missing capability"})
	EndOperation(span, errors.Join(domain.ErrUnauthorized))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "agora.vetoProposal", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	attrs := attribute.NewSet(spans[0].Attributes()...)
	code, ok := attrs.Value(attribute.Key("agora.error.code"))
	require.True(t, ok)
	assert.Equal(t, "UNAUTHORIZED", code.AsString())
	status, ok := attrs.Value(attribute.Key("agora.proposal.status"))
	require.True(t, ok)
	assert.Equal(t, "approved", status.AsString())
	required, ok := attrs.Value(attribute.Key("agora.authz.required"))
	require.True(t, ok)
	assert.Equal(t, "board", required.AsString())

	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestSetupProvider_NoEndpoint(t *testing.T) {
	shutdown, err := SetupProvider(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewResource(t *testing.T) {
	res, err := newResource(context.Background(), Config{
		Environment:  "staging",
		ResourceTags: map[string]string{"team": "treasury", "service.name": "spoofed"},
	})
	require.NoError(t, err)

	attrs := res.Set()
	want := map[string]string{
		"service.name":           DefaultServiceName,
		"service.namespace":      "agora",
		"agora.component":        DefaultComponent,
		"agora.instrumentation":  "github.com/agoradao/agora",
		"deployment.environment": "staging",
		"team":                   "treasury",
	}
	for key, value := range want {
		got, ok := attrs.Value(attribute.Key(key))
		require.True(t, ok, key)
		assert.Equal(t, value, got.AsString(), key)
	}

	res, err = newResource(context.Background(), Config{ServiceName: "agora-cleanup", Component: "cleanup"})
	require.NoError(t, err)
	name, _ := res.Set().Value(attribute.Key("service.name"))
	assert.Equal(t, "agora-cleanup", name.AsString())
	component, _ := res.Set().Value(attribute.Key("agora.component"))
	assert.Equal(t, "cleanup", component.AsString())
}

package approval

import (
	"context"

	"gitlab.com/yelinaung/expense-approval/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "gitlab.com/yelinaung/expense-approval/internal/approval"

var noopMeter = noop.NewMeterProvider().Meter(instrumentationName)

type instruments struct {
	tracer      trace.Tracer
	votes       metric.Int64Counter
	transitions metric.Int64Counter
	finalized   metric.Int64Counter
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) instruments {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	// Instrument creation only fails for invalid names; fall back to no-op
	// counters so metrics never break the decision path.
	votes, err := meter.Int64Counter("approval.votes",
		metric.WithDescription("Vote attempts by result"))
	if err != nil {
		votes, _ = noopMeter.Int64Counter("approval.votes")
	}
	transitions, err := meter.Int64Counter("approval.step_transitions",
		metric.WithDescription("Step status transitions by target status"))
	if err != nil {
		transitions, _ = noopMeter.Int64Counter("approval.step_transitions")
	}
	finalized, err := meter.Int64Counter("approval.claims_finalized",
		metric.WithDescription("Claims reaching a terminal status"))
	if err != nil {
		finalized, _ = noopMeter.Int64Counter("approval.claims_finalized")
	}

	return instruments{
		tracer:      tp.Tracer(instrumentationName),
		votes:       votes,
		transitions: transitions,
		finalized:   finalized,
	}
}

func (in instruments) recordVote(ctx context.Context, result string) {
	in.votes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (in instruments) recordEvents(ctx context.Context, claim *models.Claim, events []models.StepEvent) {
	for _, ev := range events {
		in.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(ev.To))))
	}
	if len(events) > 0 && claim.Status.IsTerminal() {
		in.finalized.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(claim.Status))))
	}
}

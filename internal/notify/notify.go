// Package notify fans step transitions out to downstream sinks without
// blocking the approval decision path.
package notify

import (
	"context"
	"sync/atomic"

	"gitlab.com/yelinaung/expense-approval/internal/logger"
	"gitlab.com/yelinaung/expense-approval/internal/models"
)

// Sink consumes step transitions.
type Sink interface {
	Handle(ctx context.Context, event models.StepEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event models.StepEvent) error

// Handle calls f.
func (f SinkFunc) Handle(ctx context.Context, event models.StepEvent) error {
	return f(ctx, event)
}

// Dispatcher queues events in a bounded buffer and delivers them to every
// sink from a single worker, so sinks see events in publish order.
type Dispatcher struct {
	inbox   chan models.StepEvent
	sinks   []Sink
	dropped atomic.Int64
}

// NewDispatcher creates a Dispatcher with room for buffer queued events.
func NewDispatcher(buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Dispatcher{
		inbox: make(chan models.StepEvent, buffer),
		sinks: sinks,
	}
}

// Register adds a sink. It must be called before Run.
func (d *Dispatcher) Register(sink Sink) {
	d.sinks = append(d.sinks, sink)
}

// Publish enqueues the event. When the buffer is full the event is dropped
// and counted instead of blocking the caller.
func (d *Dispatcher) Publish(_ context.Context, event models.StepEvent) {
	select {
	case d.inbox <- event:
	default:
		d.dropped.Add(1)
		logger.Log.Warn().
			Str("claim_id", event.ClaimID).
			Int("step", event.StepIndex).
			Str("to", string(event.To)).
			Msg("Notification buffer full, dropping step event")
	}
}

// Dropped returns how many events Publish discarded.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers events until ctx is cancelled, then flushes whatever is still
// buffered and returns ctx.Err().
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case event := <-d.inbox:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case event := <-d.inbox:
			d.deliver(ctx, event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event models.StepEvent) {
	for _, sink := range d.sinks {
		if err := sink.Handle(ctx, event); err != nil {
			logger.Log.Error().
				Err(err).
				Str("claim_id", event.ClaimID).
				Int("step", event.StepIndex).
				Msg("Failed to deliver step event")
		}
	}
}

// LogSink writes every transition to the application log.
type LogSink struct{}

// Handle implements Sink.
func (LogSink) Handle(_ context.Context, event models.StepEvent) error {
	e := logger.Log.Info().
		Str("claim_id", event.ClaimID).
		Int64("company_id", event.CompanyID).
		Int("step", event.StepIndex).
		Str("from", string(event.From)).
		Str("to", string(event.To)).
		Str("claim_status", string(event.ClaimStatus))
	if event.Trigger != nil {
		e = e.Str("voter_hash", logger.HashUserID(event.Trigger.VoterID))
	}
	if event.Override != nil {
		e = e.Str("override_actor_hash", logger.HashUserID(event.Override.Actor))
	}
	e.Msg("Step transition")
	return nil
}

// Package events delivers committed domain events to observers. Every type
// here implements storage.Publisher and is invoked after the transaction that
// emitted the events has committed; publishers never fail the operation.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoradao/agora/pkg/domain"
	"github.com/agoradao/agora/pkg/storage"
)

var (
	_ storage.Publisher = (*LogPublisher)(nil)
	_ storage.Publisher = (*Recorder)(nil)
	_ storage.Publisher = Fanout(nil)
)

// LogPublisher writes one Info record per event.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a publisher logging through logger, or slog.Default when nil.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish implements storage.Publisher.
func (p *LogPublisher) Publish(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		attrs := []any{
			"seq", ev.Seq,
			"kind", string(ev.Kind),
			"actor", ev.Actor.Hex(),
		}
		if ev.ProposalID != (common.Hash{}) {
			attrs = append(attrs, "proposal_id", ev.ProposalID.Hex())
		}
		for k, v := range ev.Attributes {
			attrs = append(attrs, k, v)
		}
		p.logger.InfoContext(ctx, "event committed", attrs...)
	}
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// Publish implements storage.Publisher.
func (r *Recorder) Publish(_ context.Context, events []domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range events {
		r.events = append(r.events, ev.Clone())
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Clone()
	}
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Fanout publishes to each member in order. Nil members are skipped.
type Fanout []storage.Publisher

// Publish implements storage.Publisher.
func (f Fanout) Publish(ctx context.Context, events []domain.Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, events)
		}
	}
}

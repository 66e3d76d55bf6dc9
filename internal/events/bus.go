// Package events carries the notifications produced by state-changing
// exchange calls to their consumers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/tokenexchange/internal/domain"
)

// Sink consumes published events.
type Sink interface {
	Deliver(ctx context.Context, e domain.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e domain.Event) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, e domain.Event) error {
	return f(ctx, e)
}

type namedSink struct {
	name string
	sink Sink
}

// Bus numbers events and fans them out to sinks in registration order.
// A failing sink is logged and skipped; it never fails the publisher.
type Bus struct {
	mu     sync.Mutex
	seq    uint64
	sinks  []namedSink
	logger *slog.Logger
	now    func() time.Time
}

// NewBus creates a Bus with no sinks.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers sink under name.
func (b *Bus) Subscribe(name string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, namedSink{name: name, sink: sink})
}

// Publish assigns the next sequence number and a timestamp to e, delivers
// it and returns the stamped event.
func (b *Bus) Publish(ctx context.Context, e domain.Event) domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	e.Seq = b.seq
	e.Time = b.now()

	for _, s := range b.sinks {
		if err := s.sink.Deliver(ctx, e); err != nil {
			b.logger.Warn("event sink failed",
				slog.String("sink", s.name),
				slog.String("event", string(e.Kind)),
				slog.Uint64("seq", e.Seq),
				slog.String("error", err.Error()),
			)
		}
	}
	return e
}

// Seq returns the sequence number of the last published event.
func (b *Bus) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Resume continues numbering after seq. Used to pick up where a durable
// journal left off.
func (b *Bus) Resume(seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seq > b.seq {
		b.seq = seq
	}
}

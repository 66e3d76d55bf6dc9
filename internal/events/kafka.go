package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/segmentio/kafka-go"
)

// ErrPublisherFull is returned when the publish buffer is full and the
// event is dropped.
var ErrPublisherFull = errors.New("kafka publish buffer full")

// ErrPublisherClosed is returned by Deliver after Close.
var ErrPublisherClosed = errors.New("kafka publisher closed")

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a synchronous writer that waits for all replicas.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// KafkaPublisher forwards events to a kafka topic. Deliver only enqueues;
// Run drains the queue so a slow broker never stalls the exchange.
type KafkaPublisher struct {
	writer MessageWriter
	logger *slog.Logger
	queue  chan kafka.Message
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewKafkaPublisher creates a publisher with room for buffer pending messages.
func NewKafkaPublisher(writer MessageWriter, logger *slog.Logger, buffer int) *KafkaPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &KafkaPublisher{
		writer: writer,
		logger: logger,
		queue:  make(chan kafka.Message, buffer),
		done:   make(chan struct{}),
	}
}

// MessageKey returns the partition key of e: its symbol, or the trader for
// currency movements.
func MessageKey(e domain.Event) []byte {
	if e.Symbol != "" {
		return []byte(e.Symbol)
	}
	return []byte(e.Trader.Hex())
}

// Deliver implements Sink.
func (p *KafkaPublisher) Deliver(_ context.Context, e domain.Event) error {
	value, err := Marshal(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- kafka.Message{Key: MessageKey(e), Value: value}:
		return nil
	default:
		return ErrPublisherFull
	}
}

// Run writes queued messages until the queue is closed by Close.
func (p *KafkaPublisher) Run(ctx context.Context) {
	defer close(p.done)
	for msg := range p.queue {
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			p.logger.Error("kafka write failed",
				slog.String("key", string(msg.Key)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Close stops accepting events, waits for Run to flush the queue and
// closes the writer. Run must have been started.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}

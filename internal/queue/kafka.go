// unison-payments/internal/queue/kafka.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/unison-payments/internal/payments"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits payment events to a topic, keyed by subject id so every
// event for one instrument or transaction lands on the same partition.
type Publisher struct {
	w messageWriter
}

var _ payments.EventSink = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

func (p *Publisher) Emit(ctx context.Context, ev payments.PaymentEvent) error {
	msg, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error { return p.w.Close() }

func EncodeEvent(ev payments.PaymentEvent) (kafka.Message, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode payment event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.SubjectID),
		Value: b,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
		},
	}, nil
}

func DecodeEvent(m kafka.Message) (payments.PaymentEvent, error) {
	var ev payments.PaymentEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return payments.PaymentEvent{}, fmt.Errorf("decode payment event: %w", err)
	}
	if ev.EventType == "" {
		return payments.PaymentEvent{}, fmt.Errorf("decode payment event: missing event_type")
	}
	return ev, nil
}

// messageReader is the part of *kafka.Reader the relay uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Relay forwards events from the topic to sink until ctx ends. Offsets are
// committed after each message whether or not forwarding worked: the event
// stream is an audit trail, not a delivery guarantee.
func Relay(ctx context.Context, r messageReader, sink payments.EventSink, log *slog.Logger) error {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch: %w", err)
		}

		ev, err := DecodeEvent(msg)
		if err != nil {
			log.Warn("bad payment event message", "offset", msg.Offset, "partition", msg.Partition, "err", err)
		} else if err := sink.Emit(ctx, ev); err != nil {
			log.Warn("payment event relay failed", "event_type", ev.EventType, "subject_id", ev.SubjectID, "err", err)
		}

		if err := r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit: %w", err)
		}
	}
}

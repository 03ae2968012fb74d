package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	m "github.com/example/unison-payments/pkg/metrics"
)

const (
	EventInstrumentRegistered  = "PaymentInstrumentRegistered"
	EventTransactionCreated    = "PaymentTransactionCreated"
	EventTransactionAuthorized = "PaymentTransactionAuthorized"
	EventTransactionSucceeded  = "PaymentTransactionSucceeded"
	EventTransactionFailed     = "PaymentTransactionFailed"
)

// EventTypeForStatus maps a transaction status to its lifecycle event.
func EventTypeForStatus(status PaymentStatus) string {
	switch status {
	case StatusSucceeded:
		return EventTransactionSucceeded
	case StatusFailed:
		return EventTransactionFailed
	case StatusAuthorized:
		return EventTransactionAuthorized
	default:
		return EventTransactionCreated
	}
}

// PaymentEvent is the audit record emitted for instrument and transaction
// lifecycle changes. Empty optionals encode as null.
type PaymentEvent struct {
	EventType      string           `json:"event_type"`
	SubjectID      string           `json:"subject_id"`
	PersonID       string           `json:"person_id"`
	Provider       *string          `json:"provider"`
	Status         string           `json:"status"`
	Amount         *decimal.Decimal `json:"amount"`
	Currency       *string          `json:"currency"`
	Counterparty   *string          `json:"counterparty"`
	Surface        *string          `json:"surface"`
	InstrumentKind *string          `json:"instrument_kind"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func transactionEvent(txn PaymentTransaction, surface, instrumentKind string) PaymentEvent {
	amount := txn.Amount
	return PaymentEvent{
		EventType:      EventTypeForStatus(txn.Status),
		SubjectID:      txn.TxnID,
		PersonID:       txn.PersonID,
		Provider:       optional(txn.Provider),
		Status:         string(txn.Status),
		Amount:         &amount,
		Currency:       optional(txn.Currency),
		Counterparty:   optional(txn.Counterparty),
		Surface:        optional(surface),
		InstrumentKind: optional(instrumentKind),
	}
}

const defaultEmitTimeout = 2 * time.Second

// EventLogger is a best-effort emitter. LogEvent never fails: without a
// sink events are logged locally, and sink failures are logged and dropped.
type EventLogger struct {
	sink    EventSink
	log     *slog.Logger
	timeout time.Duration
}

// NewEventLogger accepts a nil sink.
func NewEventLogger(sink EventSink, log *slog.Logger) *EventLogger {
	if log == nil {
		log = slog.Default()
	}
	return &EventLogger{sink: sink, log: log, timeout: defaultEmitTimeout}
}

func (l *EventLogger) LogEvent(ctx context.Context, ev PaymentEvent) {
	m.IncEvent(ev.EventType)
	if l.sink == nil {
		l.log.Debug("payment event (local)", "event_type", ev.EventType, "subject_id", ev.SubjectID,
			"person_id", ev.PersonID, "status", ev.Status)
		return
	}

	if err := l.emit(ctx, ev); err != nil {
		m.IncSoftFailure("events", "emit")
		l.log.Debug("payment event emit failed", "event_type", ev.EventType, "subject_id", ev.SubjectID, "err", err)
	}
}

func (l *EventLogger) emit(ctx context.Context, ev PaymentEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event sink panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()
	return l.sink.Emit(ctx, ev)
}

package clients

import (
	"context"
	"fmt"

	"github.com/example/unison-payments/internal/payments"
)

// EventSink posts payment events to the context service.
type EventSink struct {
	svc *ServiceClient
}

var _ payments.EventSink = (*EventSink)(nil)

func NewEventSink(svc *ServiceClient) *EventSink { return &EventSink{svc: svc} }

func (s *EventSink) Emit(ctx context.Context, ev payments.PaymentEvent) error {
	resp, err := s.svc.Post(ctx, "/payments/events", nil, ev)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("payment event emit: status %d", resp.Status)
	}
	return nil
}

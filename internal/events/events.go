// Package events records appointment lifecycle events to the audit table and,
// when configured, a RabbitMQ topic exchange.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	AppointmentCreated       = "APPOINTMENT_CREATED"
	AppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	AppointmentDeleted       = "APPOINTMENT_DELETED"
	CheckoutStarted          = "PAYMENT_CHECKOUT_STARTED"
	PaymentReconciled        = "PAYMENT_RECONCILED"
	PaymentIntentExpired     = "PAYMENT_INTENT_EXPIRED"
)

type Event struct {
	Type          string         `json:"event"`
	AppointmentID uuid.UUID      `json:"appointment_id"`
	Payload       map[string]any `json:"data,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Sink receives events after the state change they describe has committed.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Multi fans an event out to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

type multi []Sink

func (m multi) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }

// Recorder is an in-memory sink for tests and local runs.
type Recorder struct {
	ch chan Event
}

func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan Event, size)}
}

func (r *Recorder) Emit(_ context.Context, ev Event) error {
	select {
	case r.ch <- ev:
		return nil
	default:
		return errors.New("recorder full")
	}
}

// Drain returns every event recorded so far.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-r.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

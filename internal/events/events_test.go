package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type failingSink struct{ err error }

func (f failingSink) Emit(context.Context, Event) error { return f.err }

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	rec := NewRecorder(4)
	boom := errors.New("boom")
	sink := Multi(rec, nil, failingSink{boom}, Nop{})

	err := sink.Emit(context.Background(), Event{Type: AppointmentCreated, AppointmentID: uuid.New()})
	if !errors.Is(err, boom) {
		t.Errorf("Emit err = %v, want boom", err)
	}
	if got := rec.Drain(); len(got) != 1 || got[0].Type != AppointmentCreated {
		t.Errorf("recorder got %+v", got)
	}
}

func TestRecorder_Full(t *testing.T) {
	rec := NewRecorder(1)
	_ = rec.Emit(context.Background(), Event{})
	if err := rec.Emit(context.Background(), Event{}); err == nil {
		t.Error("expected error when recorder is full")
	}
}

func TestRoutingKey(t *testing.T) {
	tests := map[string]string{
		PaymentReconciled:        "payment.reconciled",
		AppointmentStatusChanged: "appointment.status.changed",
	}
	for in, want := range tests {
		if got := RoutingKey(in); got != want {
			t.Errorf("RoutingKey(%q) = %q, want %q", in, got, want)
		}
	}
}

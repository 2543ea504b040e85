package redisclient

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestLocalLocker_FailsFastWhileHeld(t *testing.T) {
	l := NewLocalLocker()
	key := AppointmentKey(uuid.New())

	err := l.WithLock(context.Background(), key, func(ctx context.Context) error {
		inner := l.WithLock(ctx, key, func(context.Context) error { return nil })
		if !errors.Is(inner, ErrLockNotAcquired) {
			t.Errorf("nested WithLock err = %v, want ErrLockNotAcquired", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("outer WithLock: %v", err)
	}

	// released after fn returns
	if err := l.WithLock(context.Background(), key, func(context.Context) error { return nil }); err != nil {
		t.Errorf("WithLock after release: %v", err)
	}
}

func TestLocalLocker_PropagatesError(t *testing.T) {
	l := NewLocalLocker()
	want := errors.New("boom")
	got := l.WithLock(context.Background(), "k", func(context.Context) error { return want })
	if !errors.Is(got, want) {
		t.Errorf("err = %v, want %v", got, want)
	}
}

func TestAppointmentKey(t *testing.T) {
	id := uuid.MustParse("6f1c1f1e-8a43-4c55-9d0a-2d2d3f0f7e11")
	if got := AppointmentKey(id); got != "lock:appointment:6f1c1f1e-8a43-4c55-9d0a-2d2d3f0f7e11" {
		t.Errorf("AppointmentKey = %q", got)
	}
}

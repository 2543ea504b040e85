package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryRepository_ConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	a, err := repo.CreateAppointment(ctx, Appointment{
		DoctorID:        uuid.New(),
		PatientID:       uuid.New(),
		Status:          StatusScheduled,
		PaymentStatus:   PaymentPending,
		ScheduledAt:     time.Now(),
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}

	confirmed := StatusConfirmed
	if _, err := repo.ConditionalUpdate(ctx, a.ID, StatusScheduled, PaymentPending, Patch{Status: &confirmed}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	cancelled := StatusCancelled
	_, err = repo.ConditionalUpdate(ctx, a.ID, StatusScheduled, PaymentPending, Patch{Status: &cancelled})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("stale update err = %v, want ErrConflict", err)
	}

	paid := PaymentPaid
	_, err = repo.ConditionalUpdate(ctx, a.ID, StatusConfirmed, PaymentPaid, Patch{PaymentStatus: &paid})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("payment precondition mismatch err = %v, want ErrConflict", err)
	}

	_, err = repo.ConditionalUpdate(ctx, uuid.New(), StatusScheduled, PaymentPending, Patch{Status: &confirmed})
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("missing appointment err = %v, want ErrAppointmentNotFound", err)
	}

	if _, err := repo.ConditionalUpdate(ctx, a.ID, StatusConfirmed, PaymentPending, Patch{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty patch err = %v, want ErrInvalidInput", err)
	}

	got, _ := repo.GetAppointmentByID(ctx, a.ID)
	if got.Status != StatusConfirmed || got.PaymentStatus != PaymentPending {
		t.Fatalf("stored = %s/%s, want CONFIRMED/PENDING", got.Status, got.PaymentStatus)
	}
}

func TestMemoryRepository_ListAppointments(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	doctor := uuid.New()
	patient := uuid.New()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		d := doctor
		if i%2 == 1 {
			d = uuid.New()
		}
		_, _ = repo.CreateAppointment(ctx, Appointment{
			DoctorID:        d,
			PatientID:       patient,
			Status:          StatusScheduled,
			PaymentStatus:   PaymentPending,
			ScheduledAt:     base.Add(time.Duration(i) * 12 * time.Hour),
			DurationMinutes: 15,
		})
	}

	from, to := DayWindow(base, time.UTC)

	tests := []struct {
		name   string
		filter ListFilter
		want   int
	}{
		{"all", ListFilter{}, 5},
		{"by doctor", ListFilter{DoctorID: &doctor}, 3},
		{"by patient", ListFilter{PatientID: &patient}, 5},
		{"first day", ListFilter{From: &from, To: &to}, 2},
		{"limit", ListFilter{Limit: 2}, 2},
		{"offset past end", ListFilter{Offset: 10}, 0},
		{"status miss", ListFilter{Status: ptr(StatusCompleted)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListAppointments(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListAppointments: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
			for i := 1; i < len(got); i++ {
				if got[i].ScheduledAt.Before(got[i-1].ScheduledAt) {
					t.Fatal("results not ordered by scheduled_at")
				}
			}
		})
	}
}

func TestMemoryRepository_DeleteAppointment(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	a, _ := repo.CreateAppointment(ctx, Appointment{Status: StatusScheduled, PaymentStatus: PaymentPending})
	if err := repo.DeleteAppointment(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAppointment: %v", err)
	}
	if err := repo.DeleteAppointment(ctx, a.ID); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("second delete err = %v, want ErrAppointmentNotFound", err)
	}
}

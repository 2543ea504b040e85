package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	CreatedByID     uuid.UUID
	Status          Status
	PaymentStatus   PaymentStatus
	ScheduledAt     time.Time
	DurationMinutes int
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Payable reports whether a checkout may start for the appointment.
func (a *Appointment) Payable() bool {
	return (a.Status == StatusScheduled || a.Status == StatusConfirmed) && a.PaymentStatus == PaymentPending
}

// Patch is the only way to change a stored appointment. Nil fields are left as is.
type Patch struct {
	Status        *Status
	PaymentStatus *PaymentStatus
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.PaymentStatus == nil
}

// CreateInput is the typed body of a create request.
type CreateInput struct {
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
	Notes           string
}

type ListFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *Status
	// From and To bound ScheduledAt as [From, To).
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Paged returns f with the page window the store will actually apply.
func (f ListFilter) Paged() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// TodayFilter is the filter behind the today view: one day, one full page.
func TodayFilter(from, to time.Time) ListFilter {
	return ListFilter{From: &from, To: &to, Limit: MaxListLimit}
}

// DayWindow returns [start of day, start of next day) for t in loc.
func DayWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	lt := t.In(loc)
	from := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 0, 1)
}

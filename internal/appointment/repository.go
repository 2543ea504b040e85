package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrConflict means the row changed between read and conditional update.
	ErrConflict = errors.New("appointment was modified concurrently")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)

	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	// ConditionalUpdate applies patch only if status and payment status still equal
	// the expected values. It returns ErrConflict when they do not.
	ConditionalUpdate(ctx context.Context, id uuid.UUID, expected Status, expectedPayment PaymentStatus, patch Patch) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
}

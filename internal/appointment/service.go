package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saifyeddes/GestionClinic-sub000/internal/auth"
	"github.com/saifyeddes/GestionClinic-sub000/internal/config"
	"github.com/saifyeddes/GestionClinic-sub000/internal/events"
	redisclient "github.com/saifyeddes/GestionClinic-sub000/internal/redis"
)

var (
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrInvalidInput      = errors.New("invalid input")
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	sink   events.Sink
	cfg    config.Config
	logger zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, sink events.Sink, cfg config.Config, logger zerolog.Logger) *Service {
	if sink == nil {
		sink = events.Nop{}
	}
	return &Service{
		repo:   repo,
		locker: locker,
		sink:   sink,
		cfg:    cfg,
		logger: logger.With().Str("component", "appointment").Logger(),
	}
}

// ResourceOf exposes the ownership facts the policy needs for a.
func ResourceOf(a *Appointment) auth.Resource {
	return auth.Resource{PatientID: a.PatientID, DoctorID: a.DoctorID}
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	appt, err := s.repo.GetAppointmentByID(sctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

// Create books a new appointment in SCHEDULED with payment PENDING.
// Overlapping bookings for the same doctor are not checked here.
func (s *Service) Create(ctx context.Context, p *auth.Principal, in CreateInput) (*Appointment, error) {
	if err := auth.Authorize(p, auth.CapAppointmentCreate, auth.Resource{PatientID: in.PatientID, DoctorID: in.DoctorID}); err != nil {
		return nil, err
	}

	switch {
	case in.DoctorID == uuid.Nil:
		return nil, fmt.Errorf("%w: doctor_id is required", ErrInvalidInput)
	case in.PatientID == uuid.Nil:
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	case in.ScheduledAt.IsZero():
		return nil, fmt.Errorf("%w: scheduled_at is required", ErrInvalidInput)
	case in.DurationMinutes <= 0:
		return nil, fmt.Errorf("%w: duration_minutes must be positive", ErrInvalidInput)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if _, err := s.repo.GetPatientByID(sctx, in.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetDoctorByID(sctx, in.DoctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	appt, err := s.repo.CreateAppointment(sctx, Appointment{
		ID:              uuid.New(),
		DoctorID:        in.DoctorID,
		PatientID:       in.PatientID,
		CreatedByID:     p.ID,
		Status:          StatusScheduled,
		PaymentStatus:   PaymentPending,
		ScheduledAt:     in.ScheduledAt.UTC(),
		DurationMinutes: in.DurationMinutes,
		Notes:           in.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logEvent(ctx, appt.ID, events.AppointmentCreated, map[string]any{
		"doctor_id":     appt.DoctorID.String(),
		"patient_id":    appt.PatientID.String(),
		"created_by_id": p.ID.String(),
		"scheduled_at":  appt.ScheduledAt,
	})

	return appt, nil
}

// Transition moves an appointment to the requested status. The status and payment
// status read at the start are the precondition of the write, so a concurrent
// change makes this call fail with ErrConflict instead of overwriting it.
// Rejections are returned once; nothing here retries.
func (s *Service) Transition(ctx context.Context, p *auth.Principal, id uuid.UUID, to Status) (*Appointment, error) {
	if p == nil {
		return nil, auth.ErrUnauthorized
	}
	if _, err := ParseStatus(string(to)); err != nil {
		return nil, err
	}

	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := auth.Authorize(p, auth.CapAppointmentUpdateStatus, ResourceOf(appt)); err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, appt.Status, to)
	}
	if p.Role == auth.RolePatient && to != StatusCancelled {
		return nil, fmt.Errorf("%w: patients may only cancel", auth.ErrForbidden)
	}

	var updated *Appointment
	err = s.locker.WithLock(ctx, redisclient.AppointmentKey(id), func(lockCtx context.Context) error {
		sctx, cancel := s.storeCtx(lockCtx)
		defer cancel()

		var err error
		updated, err = s.repo.ConditionalUpdate(sctx, id, appt.Status, appt.PaymentStatus, Patch{Status: &to})
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			return nil, fmt.Errorf("%w: another update is in progress", ErrConflict)
		case errors.Is(err, ErrConflict), errors.Is(err, ErrAppointmentNotFound):
			return nil, err
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, id, events.AppointmentStatusChanged, map[string]any{
		"from":         string(appt.Status),
		"to":           string(to),
		"principal_id": p.ID.String(),
		"role":         string(p.Role),
	})

	return updated, nil
}

// Delete removes an appointment outright. Only ADMIN holds appointment.delete.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id uuid.UUID) error {
	if p == nil {
		return auth.ErrUnauthorized
	}

	appt, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.Authorize(p, auth.CapAppointmentDelete, ResourceOf(appt)); err != nil {
		return err
	}

	err = s.locker.WithLock(ctx, redisclient.AppointmentKey(id), func(lockCtx context.Context) error {
		sctx, cancel := s.storeCtx(lockCtx)
		defer cancel()
		return s.repo.DeleteAppointment(sctx, id)
	})
	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			return fmt.Errorf("%w: another update is in progress", ErrConflict)
		case errors.Is(err, ErrAppointmentNotFound):
			return err
		}
		return fmt.Errorf("delete appointment: %w", err)
	}

	s.logEvent(ctx, id, events.AppointmentDeleted, map[string]any{
		"status":       string(appt.Status),
		"principal_id": p.ID.String(),
	})
	return nil
}

// Get returns one appointment the principal may read.
func (s *Service) Get(ctx context.Context, p *auth.Principal, id uuid.UUID) (*Appointment, error) {
	if p == nil {
		return nil, auth.ErrUnauthorized
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(p, auth.CapAppointmentRead, ResourceOf(appt)); err != nil {
		return nil, err
	}
	return appt, nil
}

// List returns appointments matching f. Self-scoped roles have their own
// patient or doctor id forced into the filter.
func (s *Service) List(ctx context.Context, p *auth.Principal, f ListFilter) ([]Appointment, error) {
	if p == nil {
		return nil, auth.ErrUnauthorized
	}

	scope, ok := auth.Holds(p.Role, auth.CapAppointmentList)
	if !ok {
		return nil, fmt.Errorf("%w: role %s lacks %s", auth.ErrForbidden, p.Role, auth.CapAppointmentList)
	}
	switch scope {
	case auth.ScopeOwnPatient:
		if p.PatientID == nil {
			return nil, fmt.Errorf("%w: account is not linked to a patient", auth.ErrForbidden)
		}
		f.PatientID = p.PatientID
	case auth.ScopeAssignedDoctor:
		if p.DoctorID == nil {
			return nil, fmt.Errorf("%w: account is not linked to a doctor", auth.ErrForbidden)
		}
		f.DoctorID = p.DoctorID
	}

	var res auth.Resource
	if f.PatientID != nil {
		res.PatientID = *f.PatientID
	}
	if f.DoctorID != nil {
		res.DoctorID = *f.DoctorID
	}
	if err := auth.Authorize(p, auth.CapAppointmentList, res); err != nil {
		return nil, err
	}

	f = f.Paged()

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	appointments, err := s.repo.ListAppointments(sctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

// Today lists the principal's appointments scheduled on the current day in loc.
func (s *Service) Today(ctx context.Context, p *auth.Principal, now time.Time, loc *time.Location) ([]Appointment, error) {
	from, to := DayWindow(now, loc)
	return s.List(ctx, p, TodayFilter(from, to))
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	ev := events.Event{
		Type:          eventType,
		AppointmentID: appointmentID,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}

	if err := s.sink.Emit(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to record event")
	}
}

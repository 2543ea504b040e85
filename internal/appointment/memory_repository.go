package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a thread-safe, in-memory Repository with the same
// conditional-update semantics as PgRepository.
type MemoryRepository struct {
	mu           sync.RWMutex
	patients     map[uuid.UUID]Patient
	doctors      map[uuid.UUID]Doctor
	appointments map[uuid.UUID]Appointment
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		doctors:      make(map[uuid.UUID]Doctor),
		appointments: make(map[uuid.UUID]Appointment),
		now:          time.Now,
	}
}

func (r *MemoryRepository) PutPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *MemoryRepository) PutDoctor(d Doctor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[d.ID] = d
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := r.now()
	a.CreatedAt, a.UpdatedAt = now, now
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *MemoryRepository) ConditionalUpdate(_ context.Context, id uuid.UUID, expected Status, expectedPayment PaymentStatus, patch Patch) (*Appointment, error) {
	if patch.Empty() {
		return nil, ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != expected || a.PaymentStatus != expectedPayment {
		return nil, ErrConflict
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.PaymentStatus != nil {
		a.PaymentStatus = *patch.PaymentStatus
	}
	a.UpdatedAt = r.now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	return nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f ListFilter) ([]Appointment, error) {
	r.mu.RLock()
	var out []Appointment
	for _, a := range r.appointments {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.From != nil && a.ScheduledAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.ScheduledAt.Before(*f.To) {
			continue
		}
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})

	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

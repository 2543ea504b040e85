package payment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/saifyeddes/GestionClinic-sub000/internal/appointment"
)

// MemoryRepository keeps intents in memory next to an appointment.MemoryRepository.
// Settle holds the intent lock across the claim and the appointment update, which
// gives the same all-or-nothing result as the Postgres transaction.
type MemoryRepository struct {
	mu      sync.Mutex
	intents map[string]PaymentIntent
	appts   *appointment.MemoryRepository
	now     func() time.Time
}

func NewMemoryRepository(appts *appointment.MemoryRepository) *MemoryRepository {
	return &MemoryRepository{
		intents: make(map[string]PaymentIntent),
		appts:   appts,
		now:     time.Now,
	}
}

func (r *MemoryRepository) CreateIntent(_ context.Context, in PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.now()
	}
	r.intents[in.ID] = in
	return nil
}

func (r *MemoryRepository) GetIntent(_ context.Context, id string) (*PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return &in, nil
}

func (r *MemoryRepository) ListPendingOlderThan(_ context.Context, cutoff time.Time, limit int) ([]PaymentIntent, error) {
	r.mu.Lock()
	var out []PaymentIntent
	for _, in := range r.intents {
		if in.Status == IntentPending && in.CreatedAt.Before(cutoff) {
			out = append(out, in)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) MarkExpired(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.intents[id]
	if !ok {
		return ErrIntentNotFound
	}
	if in.Status != IntentPending {
		return ErrIntentNotPending
	}
	in.Status = IntentExpired
	r.intents[id] = in
	return nil
}

func (r *MemoryRepository) Settle(ctx context.Context, intentID string, appt appointment.Appointment, patch *appointment.Patch) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	if in.Status == IntentReconciled {
		return nil, ErrIntentNotPending
	}

	var (
		updated *appointment.Appointment
		err     error
	)
	if patch != nil {
		updated, err = r.appts.ConditionalUpdate(ctx, appt.ID, appt.Status, appt.PaymentStatus, *patch)
	} else {
		updated, err = r.appts.GetAppointmentByID(ctx, appt.ID)
	}
	if err != nil {
		return nil, err
	}

	now := r.now()
	in.Status = IntentReconciled
	in.ReconciledAt = &now
	r.intents[intentID] = in
	return updated, nil
}

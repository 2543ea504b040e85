package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestResolver(t *testing.T) (*Resolver, *JWTVerifier, *MemoryAccountStore) {
	t.Helper()
	v := NewJWTVerifier(testSecret, "clinic")
	store := NewMemoryAccountStore()
	return NewResolver(v, store, time.Second, zerolog.Nop()), v, store
}

func TestResolve_UsesLiveRole(t *testing.T) {
	r, v, store := newTestResolver(t)
	id := uuid.New()
	store.Put(Account{ID: id, Email: "r@example.com", Role: RoleReceptionist, Active: true})

	// token was issued while the account was still an admin
	tok, _ := v.Issue(id, RoleAdmin, "r@example.com", time.Hour)

	p, err := r.Resolve(context.Background(), tok)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Role != RoleReceptionist {
		t.Errorf("Role = %s, want RECEPTIONIST", p.Role)
	}
	if err := Authorize(p, CapAppointmentDelete, Resource{}); !errors.Is(err, ErrForbidden) {
		t.Errorf("demoted principal can still delete: %v", err)
	}
}

func TestResolve_LinksPatient(t *testing.T) {
	r, v, store := newTestResolver(t)
	id, patientID := uuid.New(), uuid.New()
	store.Put(Account{ID: id, Role: RolePatient, PatientID: &patientID, Active: true})
	tok, _ := v.Issue(id, RolePatient, "", time.Hour)

	p, err := r.Resolve(context.Background(), tok)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.PatientID == nil || *p.PatientID != patientID {
		t.Errorf("PatientID = %v, want %s", p.PatientID, patientID)
	}
}

func TestResolve_Unauthorized(t *testing.T) {
	r, v, store := newTestResolver(t)

	inactive := uuid.New()
	store.Put(Account{ID: inactive, Role: RoleDoctor, Active: false})
	inactiveTok, _ := v.Issue(inactive, RoleDoctor, "", time.Hour)

	missingTok, _ := v.Issue(uuid.New(), RoleAdmin, "", time.Hour)

	tests := map[string]string{
		"empty":       "",
		"invalid":     "garbage",
		"deactivated": inactiveTok,
		"deleted":     missingTok,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := r.Resolve(context.Background(), tok); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Resolve = %v, want ErrUnauthorized", err)
			}
		})
	}
}

type failingStore struct{}

func (failingStore) GetAccount(context.Context, uuid.UUID) (*Account, error) {
	return nil, errors.New("connection refused")
}

func TestResolve_StoreFailureIsNotUnauthorized(t *testing.T) {
	v := NewJWTVerifier(testSecret, "clinic")
	r := NewResolver(v, failingStore{}, time.Second, zerolog.Nop())
	tok, _ := v.Issue(uuid.New(), RoleAdmin, "", time.Hour)

	_, err := r.Resolve(context.Background(), tok)
	if err == nil || errors.Is(err, ErrUnauthorized) {
		t.Errorf("Resolve = %v, want a non-auth store error", err)
	}
}

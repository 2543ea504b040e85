// Package auth resolves bearer credentials into principals and decides which
// capabilities a principal holds over a resource.
package auth

import (
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleDoctor       Role = "DOCTOR"
	RolePatient      Role = "PATIENT"
	RoleReceptionist Role = "RECEPTIONIST"
)

// ParseRole accepts only the four known roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleDoctor, RolePatient, RoleReceptionist:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Principal is the authenticated caller of one request. It is built per request
// from a verified credential plus the live account and is never persisted.
type Principal struct {
	ID    uuid.UUID
	Role  Role
	Email string
	// PatientID links a PATIENT account to its patient record.
	PatientID *uuid.UUID
	// DoctorID links a DOCTOR account to its doctor record.
	DoctorID *uuid.UUID
}

// Account is the stored user record the resolver reads on every request.
type Account struct {
	ID        uuid.UUID
	Email     string
	Role      Role
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Active    bool
}

func (a Account) principal() *Principal {
	return &Principal{
		ID:        a.ID,
		Role:      a.Role,
		Email:     a.Email,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
	}
}

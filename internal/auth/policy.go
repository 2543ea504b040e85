package auth

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

type Capability int

const (
	CapAppointmentCreate Capability = iota + 1
	CapAppointmentRead
	CapAppointmentList
	CapAppointmentUpdateStatus
	CapAppointmentDelete
	CapAppointmentPay
	CapPatientCreate
	CapPatientRead
	CapPatientReadSelf
	CapPatientUpdate
	CapPatientDelete
	CapMedicalRecordRead
	CapMedicalRecordWrite
	CapMedicalRecordDelete
)

var capabilityNames = map[Capability]string{
	CapAppointmentCreate:       "appointment.create",
	CapAppointmentRead:         "appointment.read",
	CapAppointmentList:         "appointment.list",
	CapAppointmentUpdateStatus: "appointment.updateStatus",
	CapAppointmentDelete:       "appointment.delete",
	CapAppointmentPay:          "appointment.pay",
	CapPatientCreate:           "patient.create",
	CapPatientRead:             "patient.read",
	CapPatientReadSelf:         "patient.read.self",
	CapPatientUpdate:           "patient.update",
	CapPatientDelete:           "patient.delete",
	CapMedicalRecordRead:       "medicalRecord.read",
	CapMedicalRecordWrite:      "medicalRecord.write",
	CapMedicalRecordDelete:     "medicalRecord.delete",
}

func (c Capability) String() string {
	if n, ok := capabilityNames[c]; ok {
		return n
	}
	return fmt.Sprintf("capability(%d)", int(c))
}

// AllCapabilities lists every defined capability in declaration order.
func AllCapabilities() []Capability {
	out := make([]Capability, 0, len(capabilityNames))
	for c := CapAppointmentCreate; c <= CapMedicalRecordDelete; c++ {
		out = append(out, c)
	}
	return out
}

// Scope narrows a grant to resources related to the principal.
type Scope int

const (
	ScopeAny Scope = iota
	// ScopeOwnPatient requires the resource patient to be the principal's linked patient.
	ScopeOwnPatient
	// ScopeAssignedDoctor requires the resource doctor to be the principal's linked doctor.
	ScopeAssignedDoctor
)

// Resource carries the ownership facts a scoped grant is checked against.
// Zero-value fields mean "not known", which never satisfies a scoped grant.
type Resource struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
}

type grants map[Capability]Scope

var policy = map[Role]grants{
	RoleAdmin: allCapabilities(ScopeAny),
	RoleReceptionist: {
		CapAppointmentCreate:       ScopeAny,
		CapAppointmentRead:         ScopeAny,
		CapAppointmentList:         ScopeAny,
		CapAppointmentUpdateStatus: ScopeAny,
		CapPatientCreate:           ScopeAny,
		CapPatientRead:             ScopeAny,
		CapPatientUpdate:           ScopeAny,
	},
	RoleDoctor: {
		CapAppointmentRead:         ScopeAssignedDoctor,
		CapAppointmentList:         ScopeAssignedDoctor,
		CapAppointmentUpdateStatus: ScopeAssignedDoctor,
		CapMedicalRecordRead:       ScopeAssignedDoctor,
		CapMedicalRecordWrite:      ScopeAssignedDoctor,
		CapPatientRead:             ScopeAny,
	},
	RolePatient: {
		CapAppointmentCreate:       ScopeOwnPatient,
		CapAppointmentRead:         ScopeOwnPatient,
		CapAppointmentList:         ScopeOwnPatient,
		CapAppointmentUpdateStatus: ScopeOwnPatient,
		CapAppointmentPay:          ScopeOwnPatient,
		CapPatientReadSelf:         ScopeOwnPatient,
		CapMedicalRecordRead:       ScopeOwnPatient,
	},
}

func allCapabilities(s Scope) grants {
	g := make(grants, len(capabilityNames))
	for _, c := range AllCapabilities() {
		g[c] = s
	}
	return g
}

// Authorize reports whether p holds c over res. It returns nil, ErrUnauthorized
// when there is no principal, or an error wrapping ErrForbidden with the reason.
func Authorize(p *Principal, c Capability, res Resource) error {
	if p == nil {
		return ErrUnauthorized
	}

	g, ok := policy[p.Role]
	if !ok {
		return fmt.Errorf("%w: unknown role %q", ErrForbidden, p.Role)
	}
	scope, ok := g[c]
	if !ok {
		return fmt.Errorf("%w: role %s lacks %s", ErrForbidden, p.Role, c)
	}

	switch scope {
	case ScopeAny:
		return nil
	case ScopeOwnPatient:
		if p.PatientID == nil || res.PatientID == uuid.Nil || *p.PatientID != res.PatientID {
			return fmt.Errorf("%w: %s is limited to the caller's own patient record", ErrForbidden, c)
		}
		return nil
	case ScopeAssignedDoctor:
		if p.DoctorID == nil || res.DoctorID == uuid.Nil || *p.DoctorID != res.DoctorID {
			return fmt.Errorf("%w: %s is limited to appointments assigned to the caller", ErrForbidden, c)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown scope for %s", ErrForbidden, c)
}

// Holds reports whether the role has c at all, ignoring scope. Handlers use it to
// pick a listing filter before any resource is loaded.
func Holds(r Role, c Capability) (Scope, bool) {
	g, ok := policy[r]
	if !ok {
		return 0, false
	}
	s, ok := g[c]
	return s, ok
}

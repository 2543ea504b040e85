package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/saifyeddes/GestionClinic-sub000/internal/appointment"
	"github.com/saifyeddes/GestionClinic-sub000/internal/payment"
)

type CreateAppointmentRequest struct {
	DoctorID        string    `json:"doctor_id"`
	PatientID       string    `json:"patient_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           string    `json:"notes"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CheckoutRequest struct {
	Amount     int64  `json:"amount"`
	PayerEmail string `json:"payer_email"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	CreatedByID     uuid.UUID `json:"created_by_id"`
	Status          string    `json:"status"`
	PaymentStatus   string    `json:"payment_status"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		CreatedByID:     a.CreatedByID,
		Status:          string(a.Status),
		PaymentStatus:   string(a.PaymentStatus),
		ScheduledAt:     a.ScheduledAt,
		DurationMinutes: a.DurationMinutes,
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type AppointmentListResponse struct {
	Items  []AppointmentResponse `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset,omitempty"`
}

type PaymentIntentResponse struct {
	SessionID     string    `json:"session_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	RedirectURL   string    `json:"redirect_url"`
	CreatedAt     time.Time `json:"created_at"`
}

func toPaymentIntentResponse(in *payment.PaymentIntent) PaymentIntentResponse {
	return PaymentIntentResponse{
		SessionID:     in.ID,
		AppointmentID: in.AppointmentID,
		Amount:        in.AmountMinorUnits,
		Currency:      in.Currency,
		Status:        string(in.Status),
		RedirectURL:   in.RedirectURL,
		CreatedAt:     in.CreatedAt,
	}
}

type ReconcileResponse struct {
	Outcome     string               `json:"outcome"`
	SessionID   string               `json:"session_id"`
	Appointment *AppointmentResponse `json:"appointment,omitempty"`
}

func toReconcileResponse(res payment.Result) ReconcileResponse {
	resp := ReconcileResponse{
		Outcome:   string(res.Outcome),
		SessionID: res.SessionID,
	}
	if res.Appointment != nil {
		a := toAppointmentResponse(res.Appointment)
		resp.Appointment = &a
	}
	return resp
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

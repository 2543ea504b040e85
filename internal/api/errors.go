package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/saifyeddes/GestionClinic-sub000/internal/appointment"
	"github.com/saifyeddes/GestionClinic-sub000/internal/auth"
	"github.com/saifyeddes/GestionClinic-sub000/internal/payment"
)

// Stable error codes. Clients match on these, never on details.
const (
	codeUnauthorized        = "unauthorized"
	codeForbidden           = "forbidden"
	codeIllegalTransition   = "illegal_transition"
	codeConflict            = "conflict"
	codeNotFound            = "not_found"
	codeNotPayable          = "not_payable"
	codeInvalidRequest      = "invalid_request"
	codeInvalidSignature    = "invalid_signature"
	codeProviderUnavailable = "provider_unavailable"
	codeInternal            = "internal_error"
)

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, codeUnauthorized, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, codeForbidden, err.Error())
	case errors.Is(err, appointment.ErrIllegalTransition):
		writeError(w, http.StatusConflict, codeIllegalTransition, err.Error())
	case errors.Is(err, appointment.ErrConflict):
		writeError(w, http.StatusConflict, codeConflict, err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, appointment.ErrPatientNotFound),
		errors.Is(err, appointment.ErrDoctorNotFound),
		errors.Is(err, payment.ErrIntentNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, payment.ErrNotPayable):
		writeError(w, http.StatusConflict, codeNotPayable, err.Error())
	case errors.Is(err, appointment.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, payment.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, codeInvalidSignature, err.Error())
	case errors.Is(err, payment.ErrProviderUnavailable):
		writeError(w, http.StatusServiceUnavailable, codeProviderUnavailable, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("unhandled service error")
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

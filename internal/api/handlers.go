package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/saifyeddes/GestionClinic-sub000/internal/appointment"
	"github.com/saifyeddes/GestionClinic-sub000/internal/auth"
	"github.com/saifyeddes/GestionClinic-sub000/internal/payment"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads exactly one JSON object and rejects fields dst does not declare.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: could not parse JSON: %v", appointment.ErrInvalidInput, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: body must contain a single JSON object", appointment.ErrInvalidInput)
	}
	return nil
}

func parseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a valid UUID", appointment.ErrInvalidInput, field)
	}
	return id, nil
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, r, err)
			return
		}

		doctorID, err := parseUUID(req.DoctorID, "doctor_id")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		patientID, err := parseUUID(req.PatientID, "patient_id")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		appt, err := svc.Create(r.Context(), auth.PrincipalFromContext(r.Context()), appointment.CreateInput{
			DoctorID:        doctorID,
			PatientID:       patientID,
			ScheduledAt:     req.ScheduledAt,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		appt, err := svc.Get(r.Context(), auth.PrincipalFromContext(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseListFilter(r, loc)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		items, err := svc.List(r.Context(), auth.PrincipalFromContext(r.Context()), f)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toListResponse(items, f.Paged()))
	}
}

func todayAppointmentsHandler(svc *appointment.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.Today(r.Context(), auth.PrincipalFromContext(r.Context()), time.Now(), loc)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toListResponse(items, appointment.ListFilter{Limit: appointment.MaxListLimit}))
	}
}

func toListResponse(items []appointment.Appointment, f appointment.ListFilter) AppointmentListResponse {
	resp := AppointmentListResponse{
		Items:  make([]AppointmentResponse, 0, len(items)),
		Limit:  f.Limit,
		Offset: f.Offset,
	}
	for i := range items {
		resp.Items = append(resp.Items, toAppointmentResponse(&items[i]))
	}
	return resp
}

func parseListFilter(r *http.Request, loc *time.Location) (appointment.ListFilter, error) {
	q := r.URL.Query()
	var f appointment.ListFilter

	if v := q.Get("patient_id"); v != "" {
		id, err := parseUUID(v, "patient_id")
		if err != nil {
			return f, err
		}
		f.PatientID = &id
	}
	if v := q.Get("doctor_id"); v != "" {
		id, err := parseUUID(v, "doctor_id")
		if err != nil {
			return f, err
		}
		f.DoctorID = &id
	}
	if v := q.Get("status"); v != "" {
		s, err := appointment.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = &s
	}
	if v := q.Get("date"); v != "" {
		day, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return f, fmt.Errorf("%w: date must be YYYY-MM-DD", appointment.ErrInvalidInput)
		}
		from, to := appointment.DayWindow(day, loc)
		f.From, f.To = &from, &to
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("%w: limit must be a non-negative integer", appointment.ErrInvalidInput)
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("%w: offset must be a non-negative integer", appointment.ErrInvalidInput)
		}
		f.Offset = n
	}

	return f, nil
}

func updateStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		var req UpdateStatusRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, r, err)
			return
		}
		to, err := appointment.ParseStatus(req.Status)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		appt, err := svc.Transition(r.Context(), auth.PrincipalFromContext(r.Context()), id, to)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func deleteAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		if err := svc.Delete(r.Context(), auth.PrincipalFromContext(r.Context()), id); err != nil {
			handleServiceError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func checkoutHandler(engine *payment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		var req CheckoutRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, r, err)
			return
		}

		intent, err := engine.BeginCheckout(r.Context(), auth.PrincipalFromContext(r.Context()), id, req.Amount, req.PayerEmail)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPaymentIntentResponse(intent))
	}
}

func verifyPaymentHandler(engine *payment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")

		res, err := engine.VerifyPayment(r.Context(), auth.PrincipalFromContext(r.Context()), sessionID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toReconcileResponse(res))
	}
}

// paymentWebhookHandler hands the raw body to the engine, which checks the
// signature before parsing anything.
func paymentWebhookHandler(engine *payment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "could not read body")
			return
		}

		res, err := engine.HandleWebhook(r.Context(), body, r.Header.Get("X-Signature"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toReconcileResponse(res))
	}
}

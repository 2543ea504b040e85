package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saifyeddes/GestionClinic-sub000/internal/appointment"
	"github.com/saifyeddes/GestionClinic-sub000/internal/auth"
	"github.com/saifyeddes/GestionClinic-sub000/internal/config"
	"github.com/saifyeddes/GestionClinic-sub000/internal/events"
	"github.com/saifyeddes/GestionClinic-sub000/internal/payment"
	redisclient "github.com/saifyeddes/GestionClinic-sub000/internal/redis"
)

const (
	testJWTSecret     = "test-secret-0123456789"
	testWebhookSecret = "whsec_test"
)

type testServer struct {
	handler  http.Handler
	verifier *auth.JWTVerifier
	accounts *auth.MemoryAccountStore
	appts    *appointment.MemoryRepository
	provider *payment.MemoryProvider

	doctorID, patientID uuid.UUID

	adminToken, receptionistToken, doctorToken, patientToken, strangerToken string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Config{
		StoreTimeout:         time.Second,
		ProviderTimeout:      time.Second,
		ProviderRetries:      2,
		ProviderRetryBackoff: time.Millisecond,
		WebhookSecret:        testWebhookSecret,
		Currency:             "thb",
	}
	logger := zerolog.Nop()

	s := &testServer{
		verifier:  auth.NewJWTVerifier(testJWTSecret, "clinic"),
		accounts:  auth.NewMemoryAccountStore(),
		appts:     appointment.NewMemoryRepository(),
		provider:  payment.NewMemoryProvider(),
		doctorID:  uuid.New(),
		patientID: uuid.New(),
	}
	s.appts.PutDoctor(appointment.Doctor{ID: s.doctorID, Name: "Dr. Ada"})
	s.appts.PutPatient(appointment.Patient{ID: s.patientID, Name: "Pat"})

	strangerPatient := uuid.New()
	s.appts.PutPatient(appointment.Patient{ID: strangerPatient, Name: "Stranger"})

	s.adminToken = s.account(t, auth.RoleAdmin, nil, nil)
	s.receptionistToken = s.account(t, auth.RoleReceptionist, nil, nil)
	s.doctorToken = s.account(t, auth.RoleDoctor, nil, &s.doctorID)
	s.patientToken = s.account(t, auth.RolePatient, &s.patientID, nil)
	s.strangerToken = s.account(t, auth.RolePatient, &strangerPatient, nil)

	locker := redisclient.NewLocalLocker()
	sink := events.Nop{}

	svc := appointment.NewService(s.appts, locker, sink, cfg, logger)
	engine := payment.NewEngine(payment.NewMemoryRepository(s.appts), s.appts, s.provider, locker, sink, cfg, logger)

	s.handler = NewRouter(RouterConfig{
		Appointments: svc,
		Payments:     engine,
		Resolver:     auth.NewResolver(s.verifier, s.accounts, time.Second, logger),
		Checks: []Check{
			{Name: "postgres", Critical: true, Ping: func(context.Context) error { return nil }},
		},
		Logger: logger,
		Env:    "test",
	})
	return s
}

func (s *testServer) account(t *testing.T, role auth.Role, patientID, doctorID *uuid.UUID) string {
	t.Helper()
	id := uuid.New()
	email := fmt.Sprintf("%s@example.com", id)
	s.accounts.Put(auth.Account{ID: id, Email: email, Role: role, PatientID: patientID, DoctorID: doctorID, Active: true})

	tok, err := s.verifier.Issue(id, role, email, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createAppointment(t *testing.T) AppointmentResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/appointments", s.receptionistToken, map[string]any{
		"doctor_id":        s.doctorID,
		"patient_id":       s.patientID,
		"scheduled_at":     time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"duration_minutes": 30,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body)
	}
	var resp AppointmentResponse
	decode(t, rec, &resp)
	return resp
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decode(t, rec, &resp)
	return resp.Error
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", func() string {
			tok, _ := auth.NewJWTVerifier("another-secret-0123456789", "clinic").Issue(uuid.New(), auth.RoleAdmin, "", time.Hour)
			return tok
		}()},
		{"unknown account", func() string {
			tok, _ := s.verifier.Issue(uuid.New(), auth.RoleAdmin, "", time.Hour)
			return tok
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/appointments", tt.token, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if code := errorCode(t, rec); code != codeUnauthorized {
				t.Errorf("code = %q", code)
			}
		})
	}
}

func TestDeactivatedAccountIsRejected(t *testing.T) {
	s := newTestServer(t)
	id := uuid.New()
	s.accounts.Put(auth.Account{ID: id, Role: auth.RoleAdmin, Active: false})
	tok, _ := s.verifier.Issue(id, auth.RoleAdmin, "", time.Hour)

	if rec := s.do(t, http.MethodGet, "/appointments", tok, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAppointmentLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	a := s.createAppointment(t)
	if a.Status != "SCHEDULED" || a.PaymentStatus != "PENDING" {
		t.Fatalf("created as %s/%s", a.Status, a.PaymentStatus)
	}

	path := "/appointments/" + a.ID.String() + "/status"
	steps := []struct {
		status   string
		wantCode int
		wantErr  string
	}{
		{"COMPLETED", http.StatusConflict, codeIllegalTransition},
		{"CONFIRMED", http.StatusOK, ""},
		{"IN_PROGRESS", http.StatusOK, ""},
		{"COMPLETED", http.StatusOK, ""},
		{"CANCELLED", http.StatusConflict, codeIllegalTransition},
		{"ARCHIVED", http.StatusBadRequest, codeInvalidRequest},
	}

	for _, st := range steps {
		rec := s.do(t, http.MethodPatch, path, s.doctorToken, map[string]string{"status": st.status})
		if rec.Code != st.wantCode {
			t.Fatalf("-> %s: status %d, want %d (%s)", st.status, rec.Code, st.wantCode, rec.Body)
		}
		if st.wantErr != "" {
			if code := errorCode(t, rec); code != st.wantErr {
				t.Fatalf("-> %s: code %q, want %q", st.status, code, st.wantErr)
			}
			continue
		}
		var resp AppointmentResponse
		decode(t, rec, &resp)
		if resp.Status != st.status {
			t.Fatalf("-> %s: got %s", st.status, resp.Status)
		}
	}
}

func TestUpdateStatusRejectsUnknownFields(t *testing.T) {
	s := newTestServer(t)
	a := s.createAppointment(t)

	rec := s.do(t, http.MethodPatch, "/appointments/"+a.ID.String()+"/status", s.adminToken,
		`{"status":"CONFIRMED","payment_status":"PAID"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	stored, _ := s.appts.GetAppointmentByID(context.Background(), a.ID)
	if stored.Status != appointment.StatusScheduled || stored.PaymentStatus != appointment.PaymentPending {
		t.Fatal("rejected request changed the appointment")
	}
}

func TestPermissions(t *testing.T) {
	s := newTestServer(t)
	a := s.createAppointment(t)
	id := a.ID.String()

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		body     any
		wantCode int
	}{
		{"patient confirms own", http.MethodPatch, "/appointments/" + id + "/status", s.patientToken, map[string]string{"status": "CONFIRMED"}, http.StatusForbidden},
		{"stranger cancels", http.MethodPatch, "/appointments/" + id + "/status", s.strangerToken, map[string]string{"status": "CANCELLED"}, http.StatusForbidden},
		{"stranger reads", http.MethodGet, "/appointments/" + id, s.strangerToken, nil, http.StatusForbidden},
		{"doctor deletes", http.MethodDelete, "/appointments/" + id, s.doctorToken, nil, http.StatusForbidden},
		{"receptionist deletes", http.MethodDelete, "/appointments/" + id, s.receptionistToken, nil, http.StatusForbidden},
		{"doctor checks out", http.MethodPost, "/appointments/" + id + "/checkout", s.doctorToken, map[string]any{"amount": 100, "payer_email": "a@b.c"}, http.StatusForbidden},
		{"stranger checks out", http.MethodPost, "/appointments/" + id + "/checkout", s.strangerToken, map[string]any{"amount": 100, "payer_email": "a@b.c"}, http.StatusForbidden},
		{"owner reads", http.MethodGet, "/appointments/" + id, s.patientToken, nil, http.StatusOK},
		{"missing appointment", http.MethodGet, "/appointments/" + uuid.NewString(), s.adminToken, nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/appointments/nope", s.adminToken, nil, http.StatusBadRequest},
		{"admin deletes", http.MethodDelete, "/appointments/" + id, s.adminToken, nil, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.token, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body)
			}
		})
	}
}

func TestListAppointments(t *testing.T) {
	s := newTestServer(t)
	s.createAppointment(t)
	s.createAppointment(t)

	rec := s.do(t, http.MethodGet, "/appointments?limit=1", s.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list AppointmentListResponse
	decode(t, rec, &list)
	if len(list.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(list.Items))
	}

	rec = s.do(t, http.MethodGet, "/appointments", s.strangerToken, nil)
	decode(t, rec, &list)
	if len(list.Items) != 0 {
		t.Fatalf("stranger sees %d appointments", len(list.Items))
	}

	for _, q := range []string{"?date=2026-13-01", "?status=DONE", "?limit=-1", "?doctor_id=x"} {
		if rec := s.do(t, http.MethodGet, "/appointments"+q, s.adminToken, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}

	if rec := s.do(t, http.MethodGet, "/appointments/today", s.doctorToken, nil); rec.Code != http.StatusOK {
		t.Errorf("today: status = %d", rec.Code)
	}
}

func TestListAppointmentsReportsAppliedLimit(t *testing.T) {
	s := newTestServer(t)
	s.createAppointment(t)

	tests := []struct {
		path      string
		wantLimit int
	}{
		{"/appointments", 20},
		{"/appointments?limit=0", 20},
		{"/appointments?limit=5", 5},
		{"/appointments?limit=500", 100},
		{"/appointments/today", 100},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.path, s.adminToken, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d (%s)", rec.Code, rec.Body)
			}
			var list AppointmentListResponse
			decode(t, rec, &list)
			if list.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", list.Limit, tt.wantLimit)
			}
		})
	}
}

func TestCheckoutVerifyAndWebhook(t *testing.T) {
	s := newTestServer(t)
	a := s.createAppointment(t)

	rec := s.do(t, http.MethodPost, "/appointments/"+a.ID.String()+"/checkout", s.patientToken,
		map[string]any{"amount": 50000, "payer_email": "pat@example.com"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: status %d body %s", rec.Code, rec.Body)
	}
	var intent PaymentIntentResponse
	decode(t, rec, &intent)
	if intent.SessionID == "" || intent.Status != "PENDING" {
		t.Fatalf("intent = %+v", intent)
	}

	verify := "/payments/" + intent.SessionID + "/verify"
	rec = s.do(t, http.MethodGet, verify, s.patientToken, nil)
	var res ReconcileResponse
	decode(t, rec, &res)
	if rec.Code != http.StatusOK || res.Outcome != string(payment.OutcomeNotPaid) {
		t.Fatalf("unpaid verify: %d %+v", rec.Code, res)
	}

	if err := s.provider.MarkPaid(intent.SessionID); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	body := []byte(fmt.Sprintf(`{"session_id":%q,"paid":true}`, intent.SessionID))

	forged := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	forged.Header.Set("X-Signature", payment.Sign([]byte("nope"), body))
	forgedRec := httptest.NewRecorder()
	s.handler.ServeHTTP(forgedRec, forged)
	if forgedRec.Code != http.StatusUnauthorized || errorCode(t, forgedRec) != codeInvalidSignature {
		t.Fatalf("forged webhook: %d %s", forgedRec.Code, forgedRec.Body)
	}

	for i, want := range []payment.Outcome{payment.OutcomeReconciled, payment.OutcomeAlreadyReconciled} {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
		req.Header.Set("X-Signature", payment.Sign([]byte(testWebhookSecret), body))
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("webhook %d: status %d body %s", i, rec.Code, rec.Body)
		}
		decode(t, rec, &res)
		if res.Outcome != string(want) {
			t.Fatalf("webhook %d: outcome %s, want %s", i, res.Outcome, want)
		}
	}

	rec = s.do(t, http.MethodGet, verify, s.patientToken, nil)
	decode(t, rec, &res)
	if rec.Code != http.StatusOK || res.Outcome != string(payment.OutcomeAlreadyReconciled) {
		t.Fatalf("late verify: %d %+v", rec.Code, res)
	}
	if res.Appointment == nil || res.Appointment.Status != "CONFIRMED" || res.Appointment.PaymentStatus != "PAID" {
		t.Fatalf("appointment after reconcile = %+v", res.Appointment)
	}

	rec = s.do(t, http.MethodPost, "/appointments/"+a.ID.String()+"/checkout", s.patientToken,
		map[string]any{"amount": 50000, "payer_email": "pat@example.com"})
	if rec.Code != http.StatusConflict || errorCode(t, rec) != codeNotPayable {
		t.Fatalf("checkout on paid appointment: %d %s", rec.Code, rec.Body)
	}

	if rec := s.do(t, http.MethodGet, "/payments/sess_missing/verify", s.patientToken, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session verify: %d", rec.Code)
	}
}

func TestCheckoutProviderUnavailable(t *testing.T) {
	s := newTestServer(t)
	a := s.createAppointment(t)
	s.provider.FailNextCreates(1)

	rec := s.do(t, http.MethodPost, "/appointments/"+a.ID.String()+"/checkout", s.patientToken,
		map[string]any{"amount": 50000, "payer_email": "pat@example.com"})
	if rec.Code != http.StatusServiceUnavailable || errorCode(t, rec) != codeProviderUnavailable {
		t.Fatalf("status %d body %s", rec.Code, rec.Body)
	}
}

func TestHandleServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantBody string
	}{
		{auth.ErrUnauthorized, http.StatusUnauthorized, codeUnauthorized},
		{fmt.Errorf("wrap: %w", auth.ErrForbidden), http.StatusForbidden, codeForbidden},
		{appointment.ErrIllegalTransition, http.StatusConflict, codeIllegalTransition},
		{appointment.ErrConflict, http.StatusConflict, codeConflict},
		{appointment.ErrDoctorNotFound, http.StatusNotFound, codeNotFound},
		{payment.ErrIntentNotFound, http.StatusNotFound, codeNotFound},
		{payment.ErrNotPayable, http.StatusConflict, codeNotPayable},
		{appointment.ErrInvalidInput, http.StatusBadRequest, codeInvalidRequest},
		{payment.ErrInvalidSignature, http.StatusUnauthorized, codeInvalidSignature},
		{payment.ErrProviderUnavailable, http.StatusServiceUnavailable, codeProviderUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, codeInternal},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		handleServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
		if rec.Code != tt.wantCode {
			t.Errorf("%v: status %d, want %d", tt.err, rec.Code, tt.wantCode)
		}
		if code := errorCode(t, rec); code != tt.wantBody {
			t.Errorf("%v: code %q, want %q", tt.err, code, tt.wantBody)
		}
	}
}

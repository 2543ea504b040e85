package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	tests := []struct {
		name       string
		checks     []Check
		wantStatus string
		wantCode   int
	}{
		{"all up", []Check{{"postgres", true, ok}, {"redis", false, ok}}, "ok", http.StatusOK},
		{"optional down", []Check{{"postgres", true, ok}, {"amqp", false, down}}, "degraded", http.StatusOK},
		{"critical down", []Check{{"postgres", true, down}, {"redis", false, ok}}, "error", http.StatusServiceUnavailable},
		{"critical down after degraded", []Check{{"amqp", false, down}, {"postgres", true, down}}, "error", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checks, "test", "v1")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp ReadinessResponse
			decode(t, rec, &resp)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if len(resp.Dependencies) != len(tt.checks) {
				t.Errorf("dependencies = %v", resp.Dependencies)
			}
		})
	}
}

func TestLiveness(t *testing.T) {
	h := NewHealthHandler(nil, "test", "v1")
	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

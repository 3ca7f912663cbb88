package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/ridelinehq/dispatchd/internal/health"
)

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()

	h := health.New()
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 200 {
		t.Fatalf("Healthz: status=%d, want 200", rec.Code)
	}
}

func TestReadyz_AllPass(t *testing.T) {
	t.Parallel()

	h := health.New(
		health.Checker{Name: "session_store", Check: func(context.Context) error { return nil }},
		health.Checker{Name: "booking_store", Check: func(context.Context) error { return nil }},
	)
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != 200 {
		t.Fatalf("Readyz: status=%d, want 200", rec.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status=%q, want ok", body.Status)
	}
	if body.Checks["booking_store"] != "ok" {
		t.Errorf(`checks["booking_store"]=%q, want ok`, body.Checks["booking_store"])
	}
}

func TestReadyz_OneFails(t *testing.T) {
	t.Parallel()

	h := health.New(
		health.Checker{Name: "session_store", Check: func(context.Context) error { return nil }},
		health.Checker{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != 503 {
		t.Fatalf("Readyz: status=%d, want 503", rec.Code)
	}
}

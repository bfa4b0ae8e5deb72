package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSettlementOutcomes(t *testing.T) {
	m := New()
	m.Settlement(OutcomeSettled)
	m.Settlement(OutcomeSettled)
	m.Settlement(OutcomeConflict)

	if got := testutil.ToFloat64(m.settlements.WithLabelValues(OutcomeSettled)); got != 2 {
		t.Errorf("settled = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.settlements.WithLabelValues(OutcomeConflict)); got != 1 {
		t.Errorf("conflict = %v, want 1", got)
	}
}

func TestStalePendingAndPayments(t *testing.T) {
	m := New()
	m.SetStalePending(3)
	m.ObservePayment(120*time.Millisecond, true)
	m.ObservePayment(time.Second, false)

	if got := testutil.ToFloat64(m.stalePending); got != 3 {
		t.Errorf("stale pending = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(m.payments); got != 2 {
		t.Errorf("payment series = %d, want 2", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.Settlement(OutcomeSettled)
	m.ObservePayment(time.Second, true)
	m.SetStalePending(1)

	called := false
	h := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !called {
		t.Error("nil Instrument did not call the wrapped handler")
	}
}

func TestInstrumentLabelsByPattern(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tasks/{id}/approve", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	h := m.Instrument(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/tasks/7/approve", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nowhere", nil))

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "POST /api/tasks/{id}/approve", "409")); got != 1 {
		t.Errorf("approve requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched requests = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "taskpay_http_requests_total") {
		t.Error("exposition missing taskpay_http_requests_total")
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

func newInstrumentedRouter(reg *prometheus.Registry) chi.Router {
	r := chi.NewRouter()
	r.Use(Metrics(
		WithRegistry(reg),
		WithMetricsFilter(func(r *http.Request) bool {
			return !strings.HasPrefix(r.URL.Path, "/ws")
		}),
	))
	r.Use(OpenTelemetry())
	r.Get("/api/thing/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return r
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	router := newInstrumentedRouter(reg)

	for _, path := range []string{"/api/thing/1", "/api/thing/2", "/boom"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "signalgrid_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var route, status string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "route":
					route = l.GetValue()
				case "status":
					status = l.GetValue()
				}
			}
			counts[route+" "+status] = m.GetCounter().GetValue()
		}
	}

	// Both parameterized requests share one route label.
	if counts["/api/thing/{id} 200"] != 2 {
		t.Errorf("requests_total for /api/thing/{id} = %v, want 2", counts["/api/thing/{id} 200"])
	}
	if counts["/boom 500"] != 1 {
		t.Errorf("requests_total for /boom = %v, want 1", counts["/boom 500"])
	}
}

func TestMetricsFilterSkipsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	router := chi.NewRouter()
	router.Use(Metrics(
		WithRegistry(reg),
		WithMetricsFilter(func(r *http.Request) bool { return false }),
	))
	router.Get("/x", func(w http.ResponseWriter, r *http.Request) {})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "signalgrid_http_requests_total" && len(mf.GetMetric()) > 0 {
			t.Error("filtered request was instrumented")
		}
	}
}

func TestOpenTelemetryPassesThrough(t *testing.T) {
	router := chi.NewRouter()
	router.Use(OpenTelemetry(WithTracerName("test")))
	router.Get("/x", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
}

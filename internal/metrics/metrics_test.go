package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeQueue struct{ pending, capacity int }

func (f fakeQueue) Pending() int  { return f.pending }
func (f fakeQueue) Capacity() int { return f.capacity }

func TestCollector(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(NewCollector(nil, fakeQueue{pending: 3, capacity: 100}))

	expected := `
# HELP podcheck_webhook_queue_pending Reports waiting for webhook delivery.
# TYPE podcheck_webhook_queue_pending gauge
podcheck_webhook_queue_pending 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "podcheck_webhook_queue_pending"); err != nil {
		t.Error(err)
	}

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("collected %d metrics, want 5", n)
	}
}

func TestCollector_NilQueue(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(NewCollector(nil, nil))
	if _, err := testutil.GatherAndCount(reg); err != nil {
		t.Fatal(err)
	}
}

func TestInstrumentHandler_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/api/v1/reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("nope"))
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/reports/{id}", "404"))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/abc-123", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/reports/{id}", "404"))

	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

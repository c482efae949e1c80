package autosense

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/couchbaselabs/go.assert"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserveScan(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.ObserveScan(ScanResult{Candidates: []string{}, Outcome: OutcomeOCRUnavailable})
	metrics.ObserveScan(ScanResult{Candidates: []string{"KT68XYZ"}, Backend: "tesseract", Outcome: OutcomeOK})

	assert.Equals(t, testutil.ToFloat64(metrics.scans.WithLabelValues("none", OutcomeOCRUnavailable)), 1.0)
	assert.Equals(t, testutil.ToFloat64(metrics.scans.WithLabelValues("tesseract", OutcomeOK)), 1.0)
	assert.Equals(t, testutil.CollectAndCount(metrics.candidates), 1)
}

func TestMetricsInstrument(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	handler := metrics.Instrument("teapot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))
	}
	assert.Equals(t, testutil.ToFloat64(metrics.counter.WithLabelValues("teapot", "418", "get")), 3.0)
	assert.Equals(t, testutil.ToFloat64(metrics.inFlightGauge), 0.0)
}

func TestMetricsRegisterTwicePanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)
	defer func() {
		assert.True(t, recover() != nil)
	}()
	NewMetrics(registry)
}

package autosense

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors of one service instance so tests can use
// their own registry.
type Metrics struct {
	inFlightGauge prometheus.Gauge
	counter       *prometheus.CounterVec
	// duration is partitioned by the HTTP method and handler. It uses custom
	// buckets based on the expected request duration.
	duration    *prometheus.HistogramVec
	requestSize *prometheus.HistogramVec
	scans       *prometheus.CounterVec
	candidates  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autosense_in_flight_requests",
			Help: "Number of currently processed requests.",
		}),
		counter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autosense_api_requests_total",
				Help: "A counter for requests to the wrapped handler.",
			},
			[]string{"handler", "code", "method"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autosense_request_duration_seconds",
				Help:    "A histogram of latencies for requests.",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"handler", "method"},
		),
		requestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autosense_request_size_bytes",
				Help:    "A histogram of request sizes.",
				Buckets: []float64{100, 1500, 100000, 1000000, 5000000, 10000000, 25000000},
			},
			[]string{"handler"},
		),
		scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autosense_scans_total",
				Help: "Scans by backend and outcome.",
			},
			[]string{"backend", "outcome"},
		),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autosense_scan_candidates",
			Help:    "Number of registration candidates extracted per scan.",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		}),
	}
	reg.MustRegister(m.inFlightGauge, m.counter, m.duration, m.requestSize, m.scans, m.candidates)
	return m
}

// Instrument wraps a handler with the in flight, duration, counter and
// request size chain.
func (m *Metrics) Instrument(name string, handler http.Handler) http.Handler {
	labels := prometheus.Labels{"handler": name}
	return promhttp.InstrumentHandlerInFlight(m.inFlightGauge,
		promhttp.InstrumentHandlerDuration(m.duration.MustCurryWith(labels),
			promhttp.InstrumentHandlerCounter(m.counter.MustCurryWith(labels),
				promhttp.InstrumentHandlerRequestSize(m.requestSize.MustCurryWith(labels), handler),
			),
		),
	)
}

func (m *Metrics) ObserveScan(result ScanResult) {
	backend := result.Backend
	if backend == "" {
		backend = "none"
	}
	m.scans.WithLabelValues(backend, result.Outcome).Inc()
	m.candidates.Observe(float64(len(result.Candidates)))
}

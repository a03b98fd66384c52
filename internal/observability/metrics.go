package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	scriptsDiscovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "oraclectl",
			Subsystem: "pipeline",
			Name:      "scripts_discovered_total",
			Help:      "Payload nodes discovered in the input document.",
		},
	)
	scriptsResolved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "oraclectl",
			Subsystem: "pipeline",
			Name:      "scripts_resolved_total",
			Help:      "Payload nodes written to the output document.",
		},
	)
	decompileFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "oraclectl",
			Subsystem: "pipeline",
			Name:      "decompile_failures_total",
			Help:      "Payload nodes that resolved with a failure marker.",
		},
	)
	cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "oraclectl",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Fingerprints served from the result cache.",
		},
	)
	inFlightBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "oraclectl",
			Subsystem: "oracle",
			Name:      "inflight_bytes",
			Help:      "Payload bytes currently awaiting a response.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(scriptsDiscovered, scriptsResolved, decompileFailures, cacheHits, inFlightBytes)
	})
}

func RecordDiscovered() {
	RegisterMetrics()
	scriptsDiscovered.Inc()
}

func RecordResolved() {
	RegisterMetrics()
	scriptsResolved.Inc()
}

func RecordFailure() {
	RegisterMetrics()
	decompileFailures.Inc()
}

func RecordCacheHit() {
	RegisterMetrics()
	cacheHits.Inc()
}

func SetInFlightBytes(n int64) {
	RegisterMetrics()
	inFlightBytes.Set(float64(n))
}

// ListenAndServe exposes the metrics registry on addr. Intended for long
// document runs where an operator wants to watch the pipeline from outside.
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

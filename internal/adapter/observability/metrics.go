// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for system monitoring.
// The package provides comprehensive observability features
// including metrics collection, distributed tracing, and logging.
package observability

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsProcessing is a gauge of jobs currently inside the processor
	// pipeline, labeled by message type ("compile"/"verify").
	JobsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_processing",
			Help: "Number of jobs currently being processed",
		},
		[]string{"type"},
	)
	// JobsCompletedTotal counts jobs that reached a successful terminal state.
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs completed successfully",
		},
		[]string{"type"},
	)
	// JobsFailedTotal counts jobs that reached a failed terminal state,
	// labeled additionally by the classified error type.
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs that failed",
		},
		[]string{"type", "error_type"},
	)
	// SubprocessInflight is a gauge of currently-running Compile/Verify
	// subprocesses, mirroring the subprocess semaphore's occupancy.
	SubprocessInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "subprocess_inflight",
			Help: "Number of subprocess invocations currently running",
		},
	)
	// RetryEngineState reports the connected/reconnecting state of a
	// reliable client's retry engine (0=connected, 1=reconnecting).
	RetryEngineState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "retry_engine_state",
			Help: "Retry engine state per wrapped client (0=connected, 1=reconnecting)",
		},
		[]string{"client"},
	)
	// PurgatoryReapedTotal counts records the purgatory reaper has removed.
	PurgatoryReapedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purgatory_reaped_total",
			Help: "Total number of purgatory records reaped",
		},
		[]string{"outcome"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(JobsProcessing)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(SubprocessInflight)
	prometheus.MustRegister(RetryEngineState)
	prometheus.MustRegister(PurgatoryReapedTotal)
}

// StartProcessingJob increments the processing gauge for the given message type.
func StartProcessingJob(msgType string) {
	JobsProcessing.WithLabelValues(msgType).Inc()
}

// CompleteJob marks a job complete: decrements processing, increments completed.
func CompleteJob(msgType string) {
	JobsProcessing.WithLabelValues(msgType).Dec()
	JobsCompletedTotal.WithLabelValues(msgType).Inc()
}

// FailJob marks a job failed: decrements processing, increments failed by error type.
func FailJob(msgType, errorType string) {
	JobsProcessing.WithLabelValues(msgType).Dec()
	JobsFailedTotal.WithLabelValues(msgType, errorType).Inc()
}

// RecordRetryEngineState reports a wrapped client's current retry state.
func RecordRetryEngineState(client string, reconnecting bool) {
	v := 0.0
	if reconnecting {
		v = 1.0
	}
	RetryEngineState.WithLabelValues(client).Set(v)
}

// RecordPurgatoryReap increments the reaped counter for the given outcome
// ("ok" or "retry").
func RecordPurgatoryReap(outcome string) {
	PurgatoryReapedTotal.WithLabelValues(outcome).Inc()
}

// Mux builds the metrics/health/readiness HTTP handler served on the
// dedicated metrics port, separate from any public-facing API.
func Mux(readyCheck func() error) http.Handler {
	r := chi.NewRouter()
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if readyCheck != nil {
			if err := readyCheck(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

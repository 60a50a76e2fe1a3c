// Package metrics holds the process's Prometheus collectors: request
// dispatch counters/latency, backend router outcomes, scheduler job
// outcomes, tribunal sessions, and registry mount state. Grounded on the
// teacher's internal/escrow/metrics.go Metrics struct + promauto
// constructor + RecordX method shape, re-keyed from the escrow/governance
// domain to the tape-host domain.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector exposed at GET /metrics.
type Metrics struct {
	RunTotal    *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	RouterCalls       *prometheus.CounterVec
	RouterBreakerOpen *prometheus.GaugeVec

	SchedulerJobs      *prometheus.CounterVec
	SchedulerLatency   prometheus.Histogram
	SchedulerQueueSize prometheus.Gauge

	TribunalSessions   *prometheus.CounterVec
	TribunalAgreement  prometheus.Histogram
	TribunalDisagree   prometheus.Counter

	RegistryMounted   prometheus.Gauge
	RegistryMountOps  *prometheus.CounterVec
}

// New creates and registers every collector against the default registry.
func New() *Metrics {
	return &Metrics{
		RunTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tapehost_run_total",
			Help: "Total POST /run calls by handler and outcome",
		}, []string{"handler", "ok"}),

		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tapehost_run_duration_seconds",
			Help:    "Duration of POST /run calls by handler",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler"}),

		RouterCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tapehost_router_calls_total",
			Help: "Backend router outcomes by backend and result",
		}, []string{"backend", "result"}), // result: success, fallback, circuit-open, error

		RouterBreakerOpen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tapehost_router_breaker_open",
			Help: "1 if a backend's circuit breaker is open, else 0",
		}, []string{"backend"}),

		SchedulerJobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tapehost_scheduler_jobs_total",
			Help: "Scheduled jobs by device and outcome",
		}, []string{"device", "outcome"}), // outcome: success, retry, exhausted

		SchedulerLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tapehost_scheduler_job_latency_seconds",
			Help:    "End-to-end scheduled job latency",
			Buckets: prometheus.DefBuckets,
		}),

		SchedulerQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tapehost_scheduler_queue_size",
			Help: "Current size of the queued-tier job backlog",
		}),

		TribunalSessions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tapehost_tribunal_sessions_total",
			Help: "Tribunal evaluation sessions by consensus verdict",
		}, []string{"verdict"}),

		TribunalAgreement: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tapehost_tribunal_agreement_rate",
			Help:    "Per-session judge agreement rate",
			Buckets: []float64{0.0, 0.2, 0.4, 0.5, 0.6, 0.8, 1.0},
		}),

		TribunalDisagree: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tapehost_tribunal_disagreements_total",
			Help: "Sessions that produced a recorded disagreement",
		}),

		RegistryMounted: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tapehost_registry_mounted_tapes",
			Help: "Current number of mounted tapes",
		}),

		RegistryMountOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tapehost_registry_mount_ops_total",
			Help: "Mount/unmount/reload operations by kind and result",
		}, []string{"op", "result"}),
	}
}

// RecordRun records one POST /run (or envelope dispatch) outcome.
func (m *Metrics) RecordRun(handler string, ok bool, seconds float64) {
	okLabel := "false"
	if ok {
		okLabel = "true"
	}
	m.RunTotal.WithLabelValues(handler, okLabel).Inc()
	m.RunDuration.WithLabelValues(handler).Observe(seconds)
}

// RecordRouterCall records one backend router attempt.
func (m *Metrics) RecordRouterCall(backend, result string) {
	m.RouterCalls.WithLabelValues(backend, result).Inc()
}

// SetBreakerOpen reflects a backend's circuit breaker state.
func (m *Metrics) SetBreakerOpen(backend string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	m.RouterBreakerOpen.WithLabelValues(backend).Set(v)
}

// RecordSchedulerJob records one scheduled job's terminal outcome and
// end-to-end latency.
func (m *Metrics) RecordSchedulerJob(device, outcome string, seconds float64) {
	m.SchedulerJobs.WithLabelValues(device, outcome).Inc()
	if outcome == "success" {
		m.SchedulerLatency.Observe(seconds)
	}
}

// RecordTribunalSession records one completed tribunal session.
func (m *Metrics) RecordTribunalSession(verdict string, agreementRate float64, disagreed bool) {
	m.TribunalSessions.WithLabelValues(verdict).Inc()
	m.TribunalAgreement.Observe(agreementRate)
	if disagreed {
		m.TribunalDisagree.Inc()
	}
}

// RecordMountOp records one registry mount/unmount/reload attempt.
func (m *Metrics) RecordMountOp(op, result string) {
	m.RegistryMountOps.WithLabelValues(op, result).Inc()
}

// SetMountedCount sets the current mounted-tape gauge.
func (m *Metrics) SetMountedCount(n int) {
	m.RegistryMounted.Set(float64(n))
}

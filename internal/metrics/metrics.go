package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for moxnas-confd.
type Metrics struct {
	registry             *prometheus.Registry
	runDurationSeconds   *prometheus.HistogramVec
	runsTotal            *prometheus.CounterVec
	stageFailuresTotal   *prometheus.CounterVec
	coalescedTotal       *prometheus.CounterVec
	reloadFallbacksTotal *prometheus.CounterVec
	lastAppliedGauge     *prometheus.GaugeVec
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moxnas_confd_run_duration_seconds",
			Help:    "Duration of configuration pipeline runs in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moxnas_confd_runs_total",
			Help: "Total pipeline runs by service and result.",
		}, []string{"service", "result"}),
		stageFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moxnas_confd_stage_failures_total",
			Help: "Total pipeline failures by service and stage.",
		}, []string{"service", "stage"}),
		coalescedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moxnas_confd_coalesced_triggers_total",
			Help: "Total triggers coalesced into an already-pending run.",
		}, []string{"service"}),
		reloadFallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moxnas_confd_reload_fallbacks_total",
			Help: "Total reloads satisfied by a full restart.",
		}, []string{"service"}),
		lastAppliedGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "moxnas_confd_last_applied_timestamp",
			Help: "Unix timestamp of the last successfully applied configuration.",
		}, []string{"service"}),
	}

	registry.MustRegister(
		m.runDurationSeconds,
		m.runsTotal,
		m.stageFailuresTotal,
		m.coalescedTotal,
		m.reloadFallbacksTotal,
		m.lastAppliedGauge,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRunDuration records the duration of a completed pipeline run.
func (m *Metrics) ObserveRunDuration(service string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runDurationSeconds.WithLabelValues(service).Observe(duration.Seconds())
}

// IncRunsTotal increments the run counter for the given service/result.
func (m *Metrics) IncRunsTotal(service, result string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(service, result).Inc()
}

// IncStageFailure increments the failure counter for the given service/stage.
func (m *Metrics) IncStageFailure(service, stage string) {
	if m == nil {
		return
	}
	m.stageFailuresTotal.WithLabelValues(service, stage).Inc()
}

// IncCoalesced increments the coalesced trigger counter.
func (m *Metrics) IncCoalesced(service string) {
	if m == nil {
		return
	}
	m.coalescedTotal.WithLabelValues(service).Inc()
}

// IncReloadFallback increments the reload fallback counter.
func (m *Metrics) IncReloadFallback(service string) {
	if m == nil {
		return
	}
	m.reloadFallbacksTotal.WithLabelValues(service).Inc()
}

// SetLastAppliedTimestamp records the time of the last successful apply.
func (m *Metrics) SetLastAppliedTimestamp(service string, t time.Time) {
	if m == nil {
		return
	}
	m.lastAppliedGauge.WithLabelValues(service).Set(float64(t.Unix()))
}

// Package metrics exposes the engine core's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector groups the engine metrics. A nil *Collector is valid and
// records nothing, so components can run without metrics in tests.
type Collector struct {
	ChecksExecuted *prometheus.CounterVec
	ChecksOrphaned *prometheus.CounterVec
	CheckLatency   *prometheus.HistogramVec
	CheckDuration  *prometheus.HistogramVec
	QueueDepth     prometheus.Gauge
	ReaperPass     prometheus.Histogram
	ResultsReaped  prometheus.Counter
	ResultsDropped prometheus.Counter
	StateChanges   *prometheus.CounterVec
	Notifications  *prometheus.CounterVec
	Flapping       *prometheus.GaugeVec
	ResolveIssues  *prometheus.GaugeVec
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated from the default registry.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		ChecksExecuted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "centengine_checks_executed_total",
				Help: "Checks handed to the executor",
			},
			[]string{"kind"},
		),
		ChecksOrphaned: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "centengine_checks_orphaned_total",
				Help: "Checks that never returned a result and were rescheduled",
			},
			[]string{"kind"},
		),
		CheckLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "centengine_check_latency_seconds",
				Help:    "Delay between a check's due time and its execution",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		CheckDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "centengine_check_duration_seconds",
				Help:    "Plugin execution time",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "state"},
		),
		QueueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "centengine_event_queue_depth",
				Help: "Events waiting in the scheduler queue",
			},
		),
		ReaperPass: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "centengine_reaper_pass_seconds",
				Help:    "Duration of a check result reaper pass",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
		ResultsReaped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "centengine_results_reaped_total",
				Help: "Check results processed by the reaper",
			},
		),
		ResultsDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "centengine_results_dropped_total",
				Help: "Check results discarded because their object is gone",
			},
		),
		StateChanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "centengine_state_changes_total",
				Help: "State changes by object kind and state type",
			},
			[]string{"kind", "state_type"},
		),
		Notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "centengine_notifications_total",
				Help: "Notifications sent by type",
			},
			[]string{"type"},
		),
		Flapping: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "centengine_flapping_objects",
				Help: "Objects currently flapping",
			},
			[]string{"kind"},
		),
		ResolveIssues: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "centengine_resolve_issues",
				Help: "Warnings and errors from the last configuration resolution",
			},
			[]string{"severity"},
		),
	}
}

func (m *Collector) CheckStarted(kind string, latency float64) {
	if m == nil {
		return
	}
	m.ChecksExecuted.WithLabelValues(kind).Inc()
	m.CheckLatency.WithLabelValues(kind).Observe(latency)
}

func (m *Collector) CheckOrphaned(kind string) {
	if m == nil {
		return
	}
	m.ChecksOrphaned.WithLabelValues(kind).Inc()
}

// ResultReaped records one processed result.
func (m *Collector) ResultReaped(kind, state string, duration float64) {
	if m == nil {
		return
	}
	m.ResultsReaped.Inc()
	m.CheckDuration.WithLabelValues(kind, state).Observe(duration)
}

func (m *Collector) ResultDropped() {
	if m == nil {
		return
	}
	m.ResultsDropped.Inc()
}

func (m *Collector) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Collector) ReaperPassDone(d time.Duration) {
	if m == nil {
		return
	}
	m.ReaperPass.Observe(d.Seconds())
}

func (m *Collector) StateChange(kind, stateType string) {
	if m == nil {
		return
	}
	m.StateChanges.WithLabelValues(kind, stateType).Inc()
}

func (m *Collector) NotificationSent(ntype string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(ntype).Inc()
}

// FlappingDelta adjusts the flapping gauge when an object starts (+1) or
// stops (-1) flapping.
func (m *Collector) FlappingDelta(kind string, delta int) {
	if m == nil {
		return
	}
	m.Flapping.WithLabelValues(kind).Add(float64(delta))
}

func (m *Collector) Resolution(warnings, errors int) {
	if m == nil {
		return
	}
	m.ResolveIssues.WithLabelValues("warning").Set(float64(warnings))
	m.ResolveIssues.WithLabelValues("error").Set(float64(errors))
}

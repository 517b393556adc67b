// Package metrics exposes Prometheus counters for detection, preflight, and
// remediation activity. All recording methods are nil-safe so callers that
// run without monitoring can pass a nil *Metrics and skip the wiring.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors. All metrics carry the
// "siloguard_" prefix.
type Metrics struct {
	DetectionRunsTotal  *prometheus.CounterVec
	ConflictsFoundTotal *prometheus.CounterVec
	OpenConflicts       prometheus.Gauge

	PreflightRunsTotal *prometheus.CounterVec

	RedirectChecksTotal *prometheus.CounterVec

	ResolutionsTotal *prometheus.CounterVec
}

// New registers and returns the process-wide metrics. Registration happens
// once; later calls return the same instance.
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			DetectionRunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "siloguard_detection_runs_total",
					Help: "Total number of detection runs",
				},
				[]string{"phase"}, // "static" or "search"
			),

			ConflictsFoundTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "siloguard_conflicts_found_total",
					Help: "Total number of conflicts emitted by detection runs",
				},
				[]string{"type"},
			),

			OpenConflicts: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "siloguard_open_conflicts",
					Help: "Current number of unresolved conflicts",
				},
			),

			PreflightRunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "siloguard_preflight_runs_total",
					Help: "Total number of preflight validations by verdict",
				},
				[]string{"verdict"}, // PASS, WARN, BLOCK
			),

			RedirectChecksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "siloguard_redirect_checks_total",
					Help: "Total number of redirect liveness probes by outcome",
				},
				[]string{"outcome"}, // "healthy" or "broken"
			),

			ResolutionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "siloguard_resolutions_total",
					Help: "Total number of conflict resolutions by action",
				},
				[]string{"action"},
			),
		}
	})
	return globalMetrics
}

// RecordDetectionRun counts one detection run and its findings.
func (m *Metrics) RecordDetectionRun(phase string, conflictTypes []string) {
	if m == nil {
		return
	}
	m.DetectionRunsTotal.WithLabelValues(phase).Inc()
	for _, t := range conflictTypes {
		m.ConflictsFoundTotal.WithLabelValues(t).Inc()
	}
}

// SetOpenConflicts updates the open-conflict gauge.
func (m *Metrics) SetOpenConflicts(n int) {
	if m == nil {
		return
	}
	m.OpenConflicts.Set(float64(n))
}

// RecordPreflight counts one validation run by overall verdict.
func (m *Metrics) RecordPreflight(verdict string) {
	if m == nil {
		return
	}
	m.PreflightRunsTotal.WithLabelValues(verdict).Inc()
}

// RecordRedirectCheck counts one liveness probe outcome.
func (m *Metrics) RecordRedirectCheck(outcome string) {
	if m == nil {
		return
	}
	m.RedirectChecksTotal.WithLabelValues(outcome).Inc()
}

// RecordResolution counts one resolved or dismissed conflict.
func (m *Metrics) RecordResolution(action string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(action).Inc()
}

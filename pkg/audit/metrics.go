package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus instrumentation for the audit path
type Metrics struct {
	// Append path
	Appends        *prometheus.CounterVec
	AppendErrors   prometheus.Counter
	AppendDuration prometheus.Histogram

	// Read path
	MalformedLines prometheus.Counter

	// Migration tool
	MigrationEntries *prometheus.CounterVec
}

// NewMetrics creates and registers audit metrics on the given registry
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Appends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronicle_audit_appends_total",
				Help: "Total number of audit records appended",
			},
			[]string{"operation"},
		),
		AppendErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chronicle_audit_append_errors_total",
				Help: "Total number of failed audit appends",
			},
		),
		AppendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chronicle_audit_append_duration_seconds",
				Help:    "Audit append duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
		),
		MalformedLines: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chronicle_audit_malformed_lines_total",
				Help: "Total number of malformed log lines skipped during reads",
			},
		),
		MigrationEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronicle_migration_entries_total",
				Help: "Total number of migration plan entries by outcome",
			},
			[]string{"action"},
		),
	}

	registry.MustRegister(
		m.Appends,
		m.AppendErrors,
		m.AppendDuration,
		m.MalformedLines,
		m.MigrationEntries,
	)

	return m
}

package observability

import (
	"context"
	"strconv"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records engine activity reported through lifecycle hooks.
type Metrics struct {
	generations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	diagnostics *prometheus.CounterVec
	validations *prometheus.CounterVec
	issues      prometheus.Gauge
}

// NewMetrics creates the engine metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strata_generations_total",
				Help: "Total number of prompt generations",
			},
			[]string{"target", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strata_generation_duration_seconds",
				Help:    "Duration of prompt generations, split by phase",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"phase"},
		),
		diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strata_render_diagnostics_total",
				Help: "Degraded renders, by level and rule kind",
			},
			[]string{"level", "kind"},
		),
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strata_validations_total",
				Help: "Total number of validation passes",
			},
			[]string{"valid"},
		),
		issues: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "strata_validation_issues",
			Help: "Issues found by the last validation pass",
		}),
	}

	for _, c := range []prometheus.Collector{m.generations, m.duration, m.diagnostics, m.validations, m.issues} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks feeding the metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnGenerate: func(_ context.Context, e *domain.GenerateEvent) {
			outcome := "ok"
			switch {
			case e.Err != nil || e.Generation == nil:
				outcome = "error"
			case e.Generation.Cached:
				outcome = "cached"
			case e.Generation.Degraded():
				outcome = "degraded"
			}
			m.generations.WithLabelValues(e.Target, outcome).Inc()
			if e.Generation == nil {
				return
			}
			t := e.Generation.Timing
			m.duration.WithLabelValues("resolve").Observe(t.Resolve.Seconds())
			m.duration.WithLabelValues("render").Observe(t.Render.Seconds())
			m.duration.WithLabelValues("total").Observe(t.Total.Seconds())
		},
		OnDiagnostic: func(_ context.Context, e *domain.DiagnosticEvent) {
			m.diagnostics.WithLabelValues(string(e.Diagnostic.Level), string(e.Diagnostic.Kind)).Inc()
		},
		OnValidate: func(_ context.Context, e *domain.ValidateEvent) {
			m.validations.WithLabelValues(strconv.FormatBool(e.Report.Valid)).Inc()
			m.issues.Set(float64(e.Report.IssueCount()))
		},
	}
}

package navigator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"findit/script"
)

// MetricsConfig configures the transition metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "findit").
	Namespace string

	// Subsystem is the metrics subsystem (default: "navigator").
	Subsystem string

	// Buckets are the histogram buckets for transition duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the transition metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "findit",
		Subsystem: "navigator",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics records transition outcomes. A nil *Metrics records nothing.
type Metrics struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	fallbacks   *prometheus.CounterVec
	scripts     *prometheus.CounterVec
}

// NewMetrics registers the transition metrics:
//   - findit_navigator_transitions_total: transitions by mode and outcome
//   - findit_navigator_transition_duration_seconds: time from trigger to idle
//   - findit_navigator_fallbacks_total: native navigations by reason
//   - findit_navigator_scripts_total: external scripts by result
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "transitions_total",
			Help:      "Total number of page transitions",
		}, []string{"mode", "outcome"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "transition_duration_seconds",
			Help:      "Page transition duration in seconds",
			Buckets:   config.Buckets,
		}, []string{"mode"}),

		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "fallbacks_total",
			Help:      "Total number of native navigations taken instead of a transition",
		}, []string{"reason"}),

		scripts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "scripts_total",
			Help:      "External scripts seen during transitions",
		}, []string{"result"}),
	}
}

func (m *Metrics) observe(mode Mode, res Result, took time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(mode.String(), res.Outcome.String()).Inc()
	m.duration.WithLabelValues(mode.String()).Observe(took.Seconds())
}

func (m *Metrics) fallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) report(rep script.Report) {
	if m == nil {
		return
	}
	m.scripts.WithLabelValues("loaded").Add(float64(len(rep.Loaded)))
	m.scripts.WithLabelValues("skipped").Add(float64(len(rep.Skipped)))
	m.scripts.WithLabelValues("failed").Add(float64(len(rep.Failed)))
}

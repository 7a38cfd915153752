package feed

import "github.com/prometheus/client_golang/prometheus"

// Metrics collects merge statistics of a Store. A nil *Metrics records nothing.
type Metrics struct {
	merges   *prometheus.CounterVec
	failures *prometheus.CounterVec
	length   prometheus.Gauge
}

// NewMetrics creates the feed collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed",
			Name:      "merges_total",
			Help:      "Merges applied to the feed, by source and outcome.",
		}, []string{"source", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed",
			Name:      "producer_failures_total",
			Help:      "Failures reported by feed producers.",
		}, []string{"source"}),
		length: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "feed",
			Name:      "entries",
			Help:      "Number of entries currently in the feed.",
		}),
	}
	reg.MustRegister(m.merges, m.failures, m.length)
	return m
}

func (m *Metrics) observe(source string, outcome Outcome, length int) {
	if m == nil {
		return
	}
	m.merges.WithLabelValues(source, string(outcome)).Inc()
	m.length.Set(float64(length))
}

func (m *Metrics) failure(source string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(source).Inc()
}

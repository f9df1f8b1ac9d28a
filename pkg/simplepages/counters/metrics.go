package counters

import "github.com/prometheus/client_golang/prometheus"

// Job results recorded in simplepages_counter_jobs_total.
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
)

// Metrics holds the worker's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	Jobs    *prometheus.CounterVec
	Retries *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simplepages",
			Subsystem: "counter",
			Name:      "jobs_total",
			Help:      "Counter jobs processed, by kind and result.",
		}, []string{"kind", "result"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simplepages",
			Subsystem: "counter",
			Name:      "retries_total",
			Help:      "Counter update attempts that failed and were retried.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Jobs, m.Retries)
	}
	return m
}

func (m *Metrics) observeJob(kind, result string) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) observeRetry(kind string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(kind).Inc()
}

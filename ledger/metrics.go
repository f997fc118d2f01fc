package ledger

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts submission outcomes by operation and error kind.
type Metrics struct {
	submissions *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

// NewMetrics builds and registers the client metrics. A nil registerer
// uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_client_submissions_total",
			Help: "Command submissions by operation.",
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_client_failures_total",
			Help: "Command submission failures by operation and error kind.",
		}, []string{"operation", "kind"}),
	}
	reg.MustRegister(m.submissions, m.failures)
	return m
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(op).Inc()
	if err == nil {
		return
	}
	kind := "unknown"
	var e *Error
	if errors.As(err, &e) {
		kind = string(e.Kind)
	}
	m.failures.WithLabelValues(op, kind).Inc()
}

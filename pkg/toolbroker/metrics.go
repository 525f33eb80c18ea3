package toolbroker

import "github.com/prometheus/client_golang/prometheus"

// Metrics collects broker-level counters. All helpers are nil-safe so the
// broker can run without any metrics wiring.
type Metrics struct {
	connects    *prometheus.CounterVec
	disconnects *prometheus.CounterVec
	invocations *prometheus.CounterVec
	searches    prometheus.Counter
}

// NewMetrics builds the counter set and registers it with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolbroker",
			Name:      "connects_total",
			Help:      "Connect attempts by server and outcome.",
		}, []string{"server", "outcome"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolbroker",
			Name:      "disconnects_total",
			Help:      "Disconnect attempts by server and outcome.",
		}, []string{"server", "outcome"}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolbroker",
			Name:      "invocations_total",
			Help:      "Operation invocations by server and outcome.",
		}, []string{"server", "outcome"}),
		searches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "toolbroker",
			Name:      "searches_total",
			Help:      "Catalog searches served.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connects, m.disconnects, m.invocations, m.searches)
	}
	return m
}

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

func outcomeLabel(err error) string {
	if err != nil {
		return outcomeError
	}
	return outcomeOK
}

func (m *Metrics) connectObserved(server string, err error) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(server, outcomeLabel(err)).Inc()
}

func (m *Metrics) disconnectObserved(server string, err error) {
	if m == nil {
		return
	}
	m.disconnects.WithLabelValues(server, outcomeLabel(err)).Inc()
}

func (m *Metrics) invocationObserved(server string, err error) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(server, outcomeLabel(err)).Inc()
}

func (m *Metrics) searchObserved() {
	if m == nil {
		return
	}
	m.searches.Inc()
}

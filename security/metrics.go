package security

import (
	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	events *prometheus.CounterVec
}

// WithMetrics registers prometheus collectors for security events and the
// live nonce/lockout gauges on reg.
func WithMetrics(reg prometheus.Registerer) ManagerOption {
	return func(m *Manager) {
		c := &collectors{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "turnstile_security_events_total",
				Help: "Security events emitted by the security manager.",
			}, []string{"event", "detail"}),
		}
		reg.MustRegister(c.events)
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "turnstile_security_active_nonces",
			Help: "Nonces that are unconsumed and within their validity window.",
		}, func() float64 {
			return float64(m.GetMetrics().ActiveNonces)
		}))
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "turnstile_security_blocked_identifiers",
			Help: "Identifiers currently locked out by failed-attempt tracking.",
		}, func() float64 {
			return float64(m.GetMetrics().BlockedIdentifiers)
		}))
		m.collectors = c
	}
}

func (m *Manager) observe(event Event, data map[string]any) {
	if m.collectors == nil {
		return
	}
	detail := ""
	if t, ok := data["type"].(string); ok {
		detail = t
	}
	m.collectors.events.WithLabelValues(string(event), detail).Inc()
}

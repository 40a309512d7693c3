package ratelimiter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAdmitted     = "admitted"
	outcomeRejected     = "rejected"
	outcomeDegraded     = "degraded"
	outcomeFailedClosed = "failed_closed"
)

// Metrics holds the Prometheus collectors of the rate limiter.
type Metrics struct {
	Decisions *prometheus.CounterVec
}

// NewMetrics creates and registers the limiter metrics with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flightapi",
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Total rate limit decisions by outcome",
			},
			[]string{"outcome"}, // admitted/rejected/degraded/failed_closed
		),
	}
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(outcome).Inc()
}

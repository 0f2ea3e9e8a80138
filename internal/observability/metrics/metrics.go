// Package metrics exposes the engine's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics holds the application-level instruments.
type Metrics struct {
	Purchases          *prometheus.CounterVec
	Refreshes          *prometheus.CounterVec
	SettlementTimeouts prometheus.Counter
}

// Module provides the registry and instruments.
var Module = fx.Module("observability.metrics",
	fx.Provide(NewRegistry),
	fx.Provide(New),
)

// NewRegistry returns a dedicated registry so tests never trip over the
// global default.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func New(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		Purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hybridpay",
			Name:      "purchases_total",
			Help:      "Purchase attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hybridpay",
			Name:      "entitlement_refreshes_total",
			Help:      "Entitlement refresh cycles by outcome.",
		}, []string{"outcome"}),
		SettlementTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hybridpay",
			Name:      "settlement_timeouts_total",
			Help:      "Crypto purchases that timed out awaiting settlement.",
		}),
	}

	for _, c := range []prometheus.Collector{m.Purchases, m.Refreshes, m.SettlementTimeouts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

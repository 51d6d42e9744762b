package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ledger's Prometheus collectors.
type Metrics struct {
	Operations   *prometheus.CounterVec
	ProtocolFees *prometheus.CounterVec
	SwapVolume   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amm_ledger_operations_total",
				Help: "Ledger operations by operation and result",
			},
			[]string{"op", "result"}, // result: ok, rejected, conflict, error
		),
		ProtocolFees: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amm_ledger_protocol_fees_total",
				Help: "Protocol fees routed to fee vaults, in base units of the asset",
			},
			[]string{"asset"},
		),
		SwapVolume: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amm_ledger_swap_volume_total",
				Help: "Swap input volume in base units of the input asset",
			},
			[]string{"asset"},
		),
	}
}

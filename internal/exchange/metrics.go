package exchange

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the exchange's Prometheus collectors.
type Metrics struct {
	Deposits *prometheus.CounterVec
	Aborted  *prometheus.CounterVec
	Reserve  *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_deposits_total",
			Help: "Deposit notifications by outcome.",
		}, []string{"outcome"}),
		Aborted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_settlements_aborted_total",
			Help: "Settlements aborted after balance queries, by reason.",
		}, []string{"reason"}),
		Reserve: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "amm_reserve",
			Help: "Last observed pool reserve in the asset's smallest unit.",
		}, []string{"asset"}),
	}
	if reg != nil {
		reg.MustRegister(m.Deposits, m.Aborted, m.Reserve)
	}
	return m
}

func (m *Metrics) observeReserves(a, b *uint256.Int) {
	m.Reserve.WithLabelValues("a").Set(toFloat(a))
	m.Reserve.WithLabelValues("b").Set(toFloat(b))
}

func toFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}

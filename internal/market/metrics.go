package market

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	TakerOrders     *prometheus.CounterVec
	MakerOrders     *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	SwapSteps       prometheus.Histogram
	CurrentTick     *prometheus.GaugeVec
	ActiveLiquidity *prometheus.GaugeVec
	PoolsTotal      prometheus.Gauge
	JournalFailures prometheus.Counter
}

// NewMetrics registers the collectors with reg. A nil reg uses a private
// registry so tests can build several managers.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		TakerOrders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vamm",
				Name:      "taker_orders_total",
				Help:      "Taker orders by market, maturity and status",
			},
			[]string{"market", "maturity", "status"},
		),
		MakerOrders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vamm",
				Name:      "maker_orders_total",
				Help:      "Maker orders by market, maturity and status",
			},
			[]string{"market", "maturity", "status"},
		),
		Rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vamm",
				Name:      "rejections_total",
				Help:      "Rejected orders by reason",
			},
			[]string{"market", "maturity", "reason"},
		),
		SwapSteps: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "vamm",
				Name:      "swap_steps",
				Help:      "Segments walked per committed taker order",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
			},
		),
		CurrentTick: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "vamm",
				Name:      "current_tick",
				Help:      "Current tick per instance",
			},
			[]string{"market", "maturity"},
		),
		ActiveLiquidity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "vamm",
				Name:      "active_liquidity",
				Help:      "Active liquidity per instance",
			},
			[]string{"market", "maturity"},
		),
		PoolsTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vamm",
				Name:      "pools",
				Help:      "Number of managed instances",
			},
		),
		JournalFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vamm",
				Name:      "journal_failures_total",
				Help:      "Committed orders whose journal or snapshot write failed",
			},
		),
	}
}

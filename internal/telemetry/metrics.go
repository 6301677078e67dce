// Package telemetry exposes the agent's Prometheus instruments behind a
// process-wide singleton so guard components can report state without
// threading a registry through every constructor.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names
const (
	MetricCyclesTotal         = "rebalancer_cycles_total"
	MetricCyclesSkippedTotal  = "rebalancer_cycles_skipped_total"
	MetricOrdersSentTotal     = "rebalancer_orders_sent_total"
	MetricOrdersRejectedTotal = "rebalancer_orders_rejected_total"
	MetricOrdersFailedTotal   = "rebalancer_orders_failed_total"
	MetricOrderRetriesTotal   = "rebalancer_order_retries_total"
	MetricBreakerOpen         = "rebalancer_breaker_open"
	MetricPortfolioValue      = "rebalancer_portfolio_value_usd"
	MetricSlippageObserved    = "rebalancer_slippage_observed"
)

// Metrics holds the initialized instruments.
type Metrics struct {
	CyclesTotal         prometheus.Counter
	CyclesSkippedTotal  *prometheus.CounterVec
	OrdersSentTotal     prometheus.Counter
	OrdersRejectedTotal *prometheus.CounterVec
	OrdersFailedTotal   prometheus.Counter
	OrderRetriesTotal   prometheus.Counter
	BreakerOpen         *prometheus.GaugeVec
	PortfolioValue      prometheus.Gauge
	SlippageObserved    prometheus.Histogram
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton, registering the instruments on
// the default registry on first use.
func GetGlobalMetrics() *Metrics {
	initOnce.Do(func() {
		globalMetrics = &Metrics{
			CyclesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: MetricCyclesTotal,
				Help: "Total rebalance cycles attempted",
			}),
			CyclesSkippedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: MetricCyclesSkippedTotal,
				Help: "Cycles skipped by a pre-trade breaker",
			}, []string{"reason"}),
			OrdersSentTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: MetricOrdersSentTotal,
				Help: "Orders accepted by the venue",
			}),
			OrdersRejectedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: MetricOrdersRejectedTotal,
				Help: "Orders rejected by pre-trade validation",
			}, []string{"reason"}),
			OrdersFailedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: MetricOrdersFailedTotal,
				Help: "Orders that exhausted all send attempts",
			}),
			OrderRetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: MetricOrderRetriesTotal,
				Help: "Send attempts beyond the first, across all orders",
			}),
			BreakerOpen: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: MetricBreakerOpen,
				Help: "Breaker open state (1=open, 0=closed)",
			}, []string{"name"}),
			PortfolioValue: promauto.NewGauge(prometheus.GaugeOpts{
				Name: MetricPortfolioValue,
				Help: "Last computed portfolio value in quote units",
			}),
			SlippageObserved: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    MetricSlippageObserved,
				Help:    "Realized slippage per fill as a fraction of the quoted price",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05},
			}),
		}
	})
	return globalMetrics
}

func (m *Metrics) SetBreakerOpen(name string, open bool) {
	val := 0.0
	if open {
		val = 1
	}
	m.BreakerOpen.WithLabelValues(name).Set(val)
}

func (m *Metrics) IncCycleSkipped(reason string) {
	m.CyclesSkippedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncOrderRejected(reason string) {
	m.OrdersRejectedTotal.WithLabelValues(reason).Inc()
}

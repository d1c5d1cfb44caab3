package amm

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for the engine. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	SwapsTotal           *prometheus.CounterVec
	SwapVolume           *prometheus.CounterVec
	LiquidityEvents      *prometheus.CounterVec
	PoolReserves         *prometheus.GaugeVec
	PoolsTotal           prometheus.Gauge
	CircuitBreakerTrips  *prometheus.CounterVec
	CircuitBreakerActive *prometheus.GaugeVec
	Rejections           *prometheus.CounterVec
	Graduations          prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		SwapsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchpool",
			Subsystem: "amm",
			Name:      "swaps_total",
			Help:      "Total pool swaps by outcome",
		}, []string{"pool", "status"}),
		SwapVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchpool",
			Subsystem: "amm",
			Name:      "swap_volume_total",
			Help:      "Swap input volume by pool and asset",
		}, []string{"pool", "asset"}),
		LiquidityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchpool",
			Subsystem: "amm",
			Name:      "liquidity_events_total",
			Help:      "Liquidity mints and burns",
		}, []string{"pool", "kind"}),
		PoolReserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "launchpool",
			Subsystem: "amm",
			Name:      "pool_reserves",
			Help:      "Current pool reserves",
		}, []string{"pool", "asset"}),
		PoolsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "launchpool",
			Subsystem: "amm",
			Name:      "pools_total",
			Help:      "Number of registered pools",
		}),
		CircuitBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchpool",
			Subsystem: "amm",
			Name:      "circuit_breaker_trips_total",
			Help:      "Circuit breaker trips by pool",
		}, []string{"pool"}),
		CircuitBreakerActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "launchpool",
			Subsystem: "amm",
			Name:      "circuit_breaker_active",
			Help:      "1 while a pool's circuit breaker is tripped",
		}, []string{"pool"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchpool",
			Subsystem: "amm",
			Name:      "rejections_total",
			Help:      "Rejected operations by reason",
		}, []string{"operation", "reason"}),
		Graduations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "launchpool",
			Subsystem: "graduation",
			Name:      "executed_total",
			Help:      "Completed token graduations",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.SwapsTotal, m.SwapVolume, m.LiquidityEvents, m.PoolReserves, m.PoolsTotal,
			m.CircuitBreakerTrips, m.CircuitBreakerActive, m.Rejections, m.Graduations,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) swap(pool, status string) {
	if m == nil {
		return
	}
	m.SwapsTotal.WithLabelValues(pool, status).Inc()
}

func (m *Metrics) volume(pool, asset string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.SwapVolume.WithLabelValues(pool, asset).Add(toFloat(amount))
}

func (m *Metrics) liquidity(pool, kind string) {
	if m == nil {
		return
	}
	m.LiquidityEvents.WithLabelValues(pool, kind).Inc()
}

func (m *Metrics) reserves(pool, asset0, asset1 string, reserve0, reserve1 *big.Int) {
	if m == nil {
		return
	}
	m.PoolReserves.WithLabelValues(pool, asset0).Set(toFloat(reserve0))
	m.PoolReserves.WithLabelValues(pool, asset1).Set(toFloat(reserve1))
}

func (m *Metrics) pools(n int) {
	if m == nil {
		return
	}
	m.PoolsTotal.Set(float64(n))
}

func (m *Metrics) breaker(pool string, active bool) {
	if m == nil {
		return
	}
	if active {
		m.CircuitBreakerTrips.WithLabelValues(pool).Inc()
		m.CircuitBreakerActive.WithLabelValues(pool).Set(1)
		return
	}
	m.CircuitBreakerActive.WithLabelValues(pool).Set(0)
}

// Reject counts a rejected operation.
func (m *Metrics) Reject(operation, reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(operation, reason).Inc()
}

// Graduated counts a completed graduation.
func (m *Metrics) Graduated() {
	if m == nil {
		return
	}
	m.Graduations.Inc()
}

func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

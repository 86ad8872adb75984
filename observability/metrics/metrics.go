// Package metrics exposes the engine's runtime state and operation counts
// as Prometheus collectors, registered against a dedicated registry so the
// daemon's /metrics endpoint never picks up the default Go collectors by
// accident.
package metrics

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine bundles the gauges and counters the crank loop and external
// operations update after every settled call.
type Engine struct {
	Registry *prometheus.Registry

	VaultCapital     prometheus.Gauge
	InsuranceFund    prometheus.Gauge
	InsuranceFloor   prometheus.Gauge
	CapitalTotal     prometheus.Gauge
	PositivePnlTotal prometheus.Gauge
	HaircutRatio     prometheus.Gauge
	LossAccum        prometheus.Gauge
	WithdrawalOnly   prometheus.Gauge

	CrankIterations  prometheus.Counter
	CrankDuration    prometheus.Histogram
	Liquidations     prometheus.Counter
	ADLEvents        prometheus.Counter
	KernelErrors     *prometheus.CounterVec
}

// NewEngine constructs and registers the full metric set.
func NewEngine() *Engine {
	reg := prometheus.NewRegistry()
	m := &Engine{
		Registry: reg,
		VaultCapital: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpkernel_vault_capital",
			Help: "Total vault capital V, scaled 1e6.",
		}),
		InsuranceFund: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpkernel_insurance_fund",
			Help: "Insurance fund balance I, scaled 1e6.",
		}),
		InsuranceFloor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpkernel_insurance_floor",
			Help: "Insurance floor I_floor below which ADL cannot spend, scaled 1e6.",
		}),
		CapitalTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpkernel_capital_total",
			Help: "Sum of every account's protected capital, scaled 1e6.",
		}),
		PositivePnlTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpkernel_positive_pnl_total",
			Help: "Sum of every account's positive realized pnl, scaled 1e6.",
		}),
		HaircutRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpkernel_haircut_ratio",
			Help: "Current junior-claim haircut ratio h, in [0,1].",
		}),
		LossAccum: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpkernel_loss_accum",
			Help: "Outstanding crisis-mode shortfall awaiting insurance top-up, scaled 1e6.",
		}),
		WithdrawalOnly: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpkernel_withdrawal_only",
			Help: "1 if the engine is in withdrawal-only crisis mode, else 0.",
		}),
		CrankIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpkernel_crank_iterations_total",
			Help: "Total accounts visited by the keeper crank.",
		}),
		CrankDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perpkernel_crank_duration_seconds",
			Help:    "Wall-clock duration of a single KeeperCrank call.",
			Buckets: prometheus.DefBuckets,
		}),
		Liquidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpkernel_liquidations_total",
			Help: "Total accounts liquidated, via either keeper call or crank.",
		}),
		ADLEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpkernel_adl_events_total",
			Help: "Total ADL distributions applied.",
		}),
		KernelErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpkernel_kernel_errors_total",
			Help: "Kernel errors returned to the host, by ErrorKind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		m.VaultCapital, m.InsuranceFund, m.InsuranceFloor, m.CapitalTotal,
		m.PositivePnlTotal, m.HaircutRatio, m.LossAccum, m.WithdrawalOnly,
		m.CrankIterations, m.CrankDuration, m.Liquidations, m.ADLEvents,
		m.KernelErrors,
	)
	return m
}

// scaledToFloat converts a u128 scaled by 1e6 into a float64 for gauge
// export. Precision loss above 2^53 is acceptable for observability.
func scaledToFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f / 1e6
}

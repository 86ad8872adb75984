package metrics

import (
	"math/big"

	"perpkernel/engine"
)

// Observe refreshes every gauge from the engine's current state. The host
// calls this once per settled operation and once per crank pass.
func (m *Engine) Observe(e *engine.Engine) {
	m.VaultCapital.Set(scaledToFloat(e.V))
	m.InsuranceFund.Set(scaledToFloat(e.I))
	m.InsuranceFloor.Set(scaledToFloat(e.IFloor))
	m.CapitalTotal.Set(scaledToFloat(e.CTot))
	m.PositivePnlTotal.Set(scaledToFloat(e.PNLPosTot))
	if e.WithdrawalOnly {
		m.WithdrawalOnly.Set(1)
	} else {
		m.WithdrawalOnly.Set(0)
	}
	m.LossAccum.Set(scaledToFloat(e.LossAccum))

	num, den := e.HaircutRatio()
	if den.Sign() != 0 {
		ratio, _ := new(big.Float).Quo(
			new(big.Float).SetInt(num),
			new(big.Float).SetInt(den),
		).Float64()
		m.HaircutRatio.Set(ratio)
	}
}

package engine

import (
	"math/big"

	"github.com/holiman/uint256"
)

// availGross returns max(pnl_i, 0) - reserved_pnl_i.
func availGross(a *Account) *big.Int {
	pos := maxI(a.PNL, zeroI())
	reserved := u256ToI128(a.ReservedPNL)
	avail := new(big.Int).Sub(pos, reserved)
	if avail.Sign() < 0 {
		return zeroI()
	}
	return avail
}

// effectiveSlot freezes at warmup_pause_slot while paused.
func (e *Engine) effectiveSlot() uint64 {
	if e.WarmupPaused {
		if e.CurrentSlot < e.WarmupPauseSlot {
			return e.CurrentSlot
		}
		return e.WarmupPauseSlot
	}
	return e.CurrentSlot
}

// warmableGross is the portion of AvailGross that has matured under the
// warmup schedule at the current (possibly paused) effective time.
func (e *Engine) warmableGross(a *Account) *big.Int {
	avail := availGross(a)
	if avail.Sign() == 0 {
		return zeroI()
	}
	eff := e.effectiveSlot()
	var elapsed uint64
	if eff > a.WarmupStartedAtSlot {
		elapsed = eff - a.WarmupStartedAtSlot
	}
	slope := u256ToI128(a.WarmupSlopePerStep)
	matured := new(big.Int).Mul(slope, new(big.Int).SetUint64(elapsed))
	if matured.Cmp(avail) > 0 {
		return avail
	}
	return matured
}

// refreshWarmupSlope recomputes warmup_slope_per_step and resets
// warmup_started_at_slot, per §4.4's slope-update rule. Must be invoked
// after any change that may alter AvailGross_i, and after any conversion.
func (e *Engine) refreshWarmupSlope(a *Account) {
	avail := availGross(a)
	if avail.Sign() == 0 {
		a.WarmupSlopePerStep = zeroU256()
	} else if e.Params.WarmupSlots > 0 {
		slope := new(big.Int).Quo(avail, new(big.Int).SetUint64(e.Params.WarmupSlots))
		if slope.Sign() == 0 {
			slope = big.NewInt(1)
		}
		a.WarmupSlopePerStep = i128ToU256(slope)
	} else {
		a.WarmupSlopePerStep = i128ToU256(avail)
	}
	if !e.WarmupPaused {
		a.WarmupStartedAtSlot = e.CurrentSlot
	}
}

// withdrawablePnl is the external, testable view of matured junior profit:
// WarmableGross. Exposed for property tests (§8 properties 5-7).
func (e *Engine) withdrawablePnl(a *Account) *uint256.Int {
	return i128ToU256(e.warmableGross(a))
}

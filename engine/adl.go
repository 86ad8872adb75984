package engine

import "math/big"

// adlResult is the outcome of running the ADL distribution: the per-account
// haircuts to apply (already checked to fit within the cached unwrapped
// pool), the amount charged to insurance, and any residue that pushes the
// engine into crisis mode.
type adlResult struct {
	haircuts        map[uint16]*big.Int
	insuranceCharge *big.Int
	residue         *big.Int
}

// runADL implements §4.8: a proportional-haircut distribution of `loss`
// across every junior profit holder except `excludeIdx`, used once per
// liquidation to route a realized profit the vault cannot back. Pass 1 and
// pass 2 are both read-only against a stack-cached snapshot; nothing is
// mutated until every check has passed (the atomicity invariant of §4.8).
func (e *Engine) runADL(excludeIdx uint16, loss *big.Int) (*adlResult, error) {
	type cacheEntry struct {
		idx       uint16
		unwrapped *big.Int
	}
	cache := make([]cacheEntry, 0, 64)
	totalUnwrapped := big.NewInt(0)

	err := e.slab.forEachUsed(func(i uint16) error {
		if i == excludeIdx {
			return nil
		}
		a, _ := e.slab.get(i)
		withdrawable := e.warmableGross(a)
		reserved := u256ToI128(a.ReservedPNL)
		unwrapped := new(big.Int).Sub(a.PNL, withdrawable)
		unwrapped.Sub(unwrapped, reserved)
		if unwrapped.Sign() <= 0 {
			return nil
		}
		cache = append(cache, cacheEntry{idx: i, unwrapped: unwrapped})
		totalUnwrapped.Add(totalUnwrapped, unwrapped)
		return nil
	})
	if err != nil {
		return nil, newErr("runADL", ErrKindOverflow, err)
	}

	haircuts := make(map[uint16]*big.Int, len(cache))
	remaining := new(big.Int).Set(loss)

	if totalUnwrapped.Sign() > 0 {
		appliedTotal := big.NewInt(0)
		for _, c := range cache {
			a, _ := e.slab.get(c.idx)
			if a.PNL.Sign() <= 0 {
				continue
			}
			h := floorMulDiv(loss, c.unwrapped, totalUnwrapped)
			if h.Cmp(c.unwrapped) > 0 {
				// A holder can never be haircut past what it actually has
				// unwrapped; when total_unwrapped < loss the raw
				// proportional share overshoots and must be clamped, with
				// the gap falling through to insurance / residue below.
				h = new(big.Int).Set(c.unwrapped)
			}
			if h.Sign() == 0 {
				continue
			}
			haircuts[c.idx] = h
			appliedTotal.Add(appliedTotal, h)
		}
		remaining.Sub(remaining, appliedTotal)
		if remaining.Sign() < 0 {
			remaining = big.NewInt(0)
		}
	}

	spendableInsurance := new(big.Int).Sub(u256ToI128(e.I), u256ToI128(e.IFloor))
	if spendableInsurance.Sign() < 0 {
		spendableInsurance = big.NewInt(0)
	}
	insuranceCharge := remaining
	residue := big.NewInt(0)
	if insuranceCharge.Cmp(spendableInsurance) > 0 {
		residue = new(big.Int).Sub(insuranceCharge, spendableInsurance)
		insuranceCharge = spendableInsurance
	}

	return &adlResult{haircuts: haircuts, insuranceCharge: insuranceCharge, residue: residue}, nil
}

// apply commits a previously computed adlResult: haircuts the junior
// profit holders, debits insurance, and pushes the engine into crisis mode
// if residue remains.
func (e *Engine) applyADL(res *adlResult, nowSlot uint64) error {
	for idx, h := range res.haircuts {
		a, ok := e.slab.get(idx)
		if !ok {
			continue
		}
		newPnl, err := SubI128(a.PNL, h)
		if err != nil {
			return err
		}
		if err := e.setPnl(a, newPnl); err != nil {
			return err
		}
	}
	if res.insuranceCharge.Sign() > 0 {
		newI, err := SubU128(e.I, i128ToU256(res.insuranceCharge))
		if err != nil {
			return err
		}
		e.I = newI
	}
	if res.residue.Sign() > 0 {
		newLossAccum, err := AddU128(e.LossAccum, i128ToU256(res.residue))
		if err != nil {
			return err
		}
		e.LossAccum = newLossAccum
		e.WithdrawalOnly = true
		e.WarmupPaused = true
		e.WarmupPauseSlot = nowSlot
	}
	return nil
}

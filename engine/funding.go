package engine

import "math/big"

// accrueFunding advances the global funding index according to the
// configured per-slot rate policy, once dt >= FundingDtMin slots have
// elapsed since the last accrual. Called once per keeper_crank invocation
// (§4.9); never called from touch_account_full, which only settles the
// per-account side lazily.
func (e *Engine) accrueFunding(nowSlot uint64) error {
	if nowSlot < e.LastFundingSlot {
		return newErr("accrueFunding", ErrKindInvalidInput, ErrNonMonotonicSlot)
	}
	dt := nowSlot - e.LastFundingSlot
	if dt < e.Params.FundingDtMin {
		return nil
	}
	rate := e.Params.FundingRatePerSlot
	if rate != nil && rate.Value != 0 {
		delta := new(big.Int).Mul(big.NewInt(rate.Value), new(big.Int).SetUint64(dt))
		next, err := AddI128(e.FundingIndex, delta)
		if err != nil {
			return err
		}
		e.FundingIndex = next
	}
	e.LastFundingSlot = nowSlot
	return nil
}

// settleFunding is step 2 of touch_account_full: lazily applies the
// account's share of funding-index movement since its last snapshot.
func (e *Engine) settleFunding(a *Account) error {
	deltaF := new(big.Int).Sub(e.FundingIndex, a.FundingIndexSnapshot)
	if deltaF.Sign() == 0 {
		return nil
	}
	payment := fundingPayment(a.PositionSize, deltaF)
	if payment.Sign() != 0 {
		newPnl, err := SubI128(a.PNL, payment)
		if err != nil {
			return err
		}
		if err := e.setPnl(a, newPnl); err != nil {
			return err
		}
	}
	a.FundingIndexSnapshot = new(big.Int).Set(e.FundingIndex)
	return nil
}

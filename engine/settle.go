package engine

import "math/big"

// touchAccountFull is the canonical settle sequence (§4.5): the single
// entry point every user-visible operation calls before mutating anything
// else. Steps run in this fixed order and must never be reordered:
// monotonic slot advance, funding settle, mark-to-oracle settle,
// maintenance fee accrual, loss settlement, profit conversion, fee-debt
// sweep.
func (e *Engine) touchAccountFull(a *Account, oraclePrice uint64, nowSlot uint64) error {
	// A zero price is only fatal for accounts carrying an open position:
	// deposit() (§6) has no fresh-price host input and settles flat
	// accounts (or re-uses the account's own last mark) instead of
	// requiring one, since mark_pnl is trivially zero when position_size
	// is zero regardless of price.
	if oraclePrice == 0 && a.PositionSize.Sign() != 0 {
		return newErr("touch_account_full", ErrKindInvalidInput, ErrZeroPrice)
	}
	if nowSlot < e.CurrentSlot {
		return newErr("touch_account_full", ErrKindInvalidInput, ErrNonMonotonicSlot)
	}
	e.CurrentSlot = nowSlot

	if err := e.settleFunding(a); err != nil {
		return newErr("touch_account_full", ErrKindOverflow, err)
	}

	if oraclePrice != 0 {
		mark := markPnl(a.PositionSize, a.EntryPrice, oraclePrice)
		if mark.Sign() != 0 {
			newPnl, err := AddI128(a.PNL, mark)
			if err != nil {
				return newErr("touch_account_full", ErrKindOverflow, err)
			}
			if err := e.setPnl(a, newPnl); err != nil {
				return newErr("touch_account_full", ErrKindOverflow, err)
			}
		}
		a.EntryPrice = oraclePrice
	}

	if err := e.accrueMaintenanceFee(a); err != nil {
		return newErr("touch_account_full", ErrKindOverflow, err)
	}

	if err := e.settleLoss(a); err != nil {
		return newErr("touch_account_full", ErrKindOverflow, err)
	}

	if err := e.convertProfit(a); err != nil {
		return newErr("touch_account_full", ErrKindOverflow, err)
	}

	if err := e.sweepFeeDebt(a); err != nil {
		return newErr("touch_account_full", ErrKindOverflow, err)
	}

	return nil
}

// accrueMaintenanceFee is step 4: a flat per-slot fee debited against
// fee_credits (which may go negative). It never touches capital directly.
func (e *Engine) accrueMaintenanceFee(a *Account) error {
	fee := e.Params.MaintenanceFeePerSlot
	if fee == nil || fee.IsZero() {
		return nil
	}
	feeSigned := u256ToI128(fee)
	next, err := SubI128(a.FeeCredits, feeSigned)
	if err != nil {
		return err
	}
	a.FeeCredits = next
	return nil
}

// settleLoss is §4.6a: while pnl_i < 0, pay from capital; unpayable residue
// is written off without touching any other account's capital.
func (e *Engine) settleLoss(a *Account) error {
	for a.PNL.Sign() < 0 {
		need := new(big.Int).Neg(a.PNL)
		pay := i128ToU256(need)
		if a.Capital.Cmp(pay) < 0 {
			pay = a.Capital
		}
		if pay.IsZero() {
			// capital exhausted: write off the remaining loss.
			if err := e.setPnl(a, zeroI()); err != nil {
				return err
			}
			break
		}
		newCapital, err := SubU128(a.Capital, pay)
		if err != nil {
			return err
		}
		if err := e.setCapital(a, newCapital); err != nil {
			return err
		}
		payI := u256ToI128(pay)
		newPnl, err := AddI128(a.PNL, payI)
		if err != nil {
			return err
		}
		if err := e.setPnl(a, newPnl); err != nil {
			return err
		}
	}
	return nil
}

// convertProfit is §4.6b: matures WarmableGross into capital at the
// pre-conversion haircut ratio, then refreshes the warmup slope.
func (e *Engine) convertProfit(a *Account) error {
	x := e.warmableGross(a)
	if x.Sign() == 0 {
		return nil
	}
	hNum, hDen := e.haircutRatio()
	pnlPosTot := u256ToI128(e.PNLPosTot)
	yVal := x
	if pnlPosTot.Sign() != 0 {
		yVal = floorMulDiv(x, hNum, hDen)
	}

	newPnl, err := SubI128(a.PNL, x)
	if err != nil {
		return err
	}
	if err := e.setPnl(a, newPnl); err != nil {
		return err
	}

	newCapital, err := AddU128(a.Capital, i128ToU256(yVal))
	if err != nil {
		return err
	}
	if err := e.setCapital(a, newCapital); err != nil {
		return err
	}

	e.refreshWarmupSlope(a)
	return nil
}

// sweepFeeDebt is §4.6c: pays down negative fee_credits from whatever
// capital just became available, crediting insurance 1:1.
func (e *Engine) sweepFeeDebt(a *Account) error {
	debt := feeDebt(a)
	if debt.Sign() == 0 {
		return nil
	}
	debtU := i128ToU256(debt)
	pay := debtU
	if a.Capital.Cmp(pay) < 0 {
		pay = a.Capital
	}
	if pay.IsZero() {
		return nil
	}
	newCapital, err := SubU128(a.Capital, pay)
	if err != nil {
		return err
	}
	if err := e.setCapital(a, newCapital); err != nil {
		return err
	}
	payI := u256ToI128(pay)
	newFeeCredits, err := AddI128(a.FeeCredits, payI)
	if err != nil {
		return err
	}
	a.FeeCredits = newFeeCredits
	newI, err := AddU128(e.I, pay)
	if err != nil {
		return err
	}
	e.I = newI
	return nil
}

package engine

import (
	"math/big"

	"github.com/holiman/uint256"
)

// LiquidateAccount implements liquidate_account(victim, keeper,
// oracle_price, now_slot) (§4.7).
func (e *Engine) LiquidateAccount(victimIdx, keeperIdx uint16, oraclePrice uint64, nowSlot uint64) error {
	const op = "LiquidateAccount"
	if victimIdx == keeperIdx {
		return newErr(op, ErrKindInvalidInput, ErrSelfLiquidation)
	}
	victim, ok := e.slab.get(victimIdx)
	if !ok {
		return newErr(op, ErrKindInvalidInput, ErrUnusedIndex)
	}
	keeper, ok := e.slab.get(keeperIdx)
	if !ok {
		return newErr(op, ErrKindInvalidInput, ErrUnusedIndex)
	}

	return e.atomic([]*Account{victim, keeper}, func(track func(*Account)) error {
		// touch_account_full's step 3 (§4.5) is about to mark this exact
		// position against oracle_price and fold the result into
		// victim.PNL, re-basing EntryPrice to oracle_price in the process.
		// Capture the pre-repricing position so the "close the position,
		// realize mark pnl" decision below uses the real realized mark
		// instead of re-marking an already-repriced (and therefore always
		// flat) position.
		oldPos := new(big.Int).Set(victim.PositionSize)
		oldEntry := victim.EntryPrice

		if err := e.touchAccountFull(victim, oraclePrice, nowSlot); err != nil {
			return err
		}

		net := e.eqMtmNet(victim, oraclePrice)
		mm := e.mmReq(victim, oraclePrice)
		if net.Cmp(u256ToI128(mm)) > 0 {
			return newErr(op, ErrKindAccountNotLiquidatable, ErrAccountSafe)
		}

		// The mark below is the same quantity touch_account_full's step 3
		// already realized into victim.PNL; it is recomputed here (not
		// reapplied) purely to learn its sign for the ADL/insurance
		// routing decision. Closing the position itself is just zeroing
		// what's left of it.
		mark := markPnl(oldPos, oldEntry, oraclePrice)
		victim.PositionSize = zeroI()

		switch mark.Sign() {
		case 1:
			// System deficit at closure: socialize through ADL, excluding
			// the victim, per §4.8. The haircut recipients aren't known
			// until this read-only scan runs; track them before applyADL
			// mutates them so a later failure in this operation rolls
			// them back too.
			res, err := e.runADL(victimIdx, mark)
			if err != nil {
				return err
			}
			for idx := range res.haircuts {
				if a, ok := e.slab.get(idx); ok {
					track(a)
				}
			}
			if err := e.applyADL(res, nowSlot); err != nil {
				return newErr(op, ErrKindOverflow, err)
			}
		case -1:
			loss := new(big.Int).Neg(mark)
			newI, err := AddU128(e.I, i128ToU256(loss))
			if err != nil {
				return newErr(op, ErrKindOverflow, err)
			}
			e.I = newI
		}

		if err := e.settleLoss(victim); err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		if err := e.convertProfit(victim); err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		if err := e.sweepFeeDebt(victim); err != nil {
			return newErr(op, ErrKindOverflow, err)
		}

		fee := new(uint256.Int).Mul(victim.Capital, uint256.NewInt(e.Params.LiquidationFeeBps))
		fee.Div(fee, uint256.NewInt(10_000))
		if fee.Cmp(victim.Capital) > 0 {
			fee = victim.Capital
		}
		if !fee.IsZero() {
			newCapital, err := SubU128(victim.Capital, fee)
			if err != nil {
				return newErr(op, ErrKindOverflow, err)
			}
			if err := e.setCapital(victim, newCapital); err != nil {
				return newErr(op, ErrKindOverflow, err)
			}

			insShare := new(uint256.Int).Mul(fee, uint256.NewInt(e.Params.InsuranceFeeShareBps))
			insShare.Div(insShare, uint256.NewInt(10_000))
			keeperShare := new(uint256.Int).Sub(fee, insShare)

			if !insShare.IsZero() {
				newI, err := AddU128(e.I, insShare)
				if err != nil {
					return newErr(op, ErrKindOverflow, err)
				}
				e.I = newI
			}
			if !keeperShare.IsZero() {
				newKeeperCapital, err := AddU128(keeper.Capital, keeperShare)
				if err != nil {
					return newErr(op, ErrKindOverflow, err)
				}
				if err := e.setCapital(keeper, newKeeperCapital); err != nil {
					return newErr(op, ErrKindOverflow, err)
				}
			}
		}
		return nil
	})
}

// TopUpInsuranceFund implements top_up_insurance_fund(amount) (§4.7):
// permissionless; reduces loss_accum first, then credits insurance.
// Returns whether the engine exited crisis mode as a result.
func (e *Engine) TopUpInsuranceFund(amount *uint256.Int) (bool, error) {
	const op = "TopUpInsuranceFund"
	wasCrisis := e.WithdrawalOnly
	toLoss := amount
	if toLoss.Cmp(e.LossAccum) > 0 {
		toLoss = e.LossAccum
	}
	newLossAccum, err := SubU128(e.LossAccum, toLoss)
	if err != nil {
		return false, newErr(op, ErrKindOverflow, err)
	}
	e.LossAccum = newLossAccum

	remainder, err := SubU128(amount, toLoss)
	if err != nil {
		return false, newErr(op, ErrKindOverflow, err)
	}
	if !remainder.IsZero() {
		newI, err := AddU128(e.I, remainder)
		if err != nil {
			return false, newErr(op, ErrKindOverflow, err)
		}
		e.I = newI
	}

	exitedCrisis := false
	if e.LossAccum.IsZero() && wasCrisis {
		e.WithdrawalOnly = false
		e.WarmupPaused = false
		exitedCrisis = true
	}
	return exitedCrisis, nil
}

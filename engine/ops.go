package engine

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Deposit implements deposit(i, amount) (§4.7, §6). Always allowed, even in
// withdrawal-only mode. The host must have transferred amount vault tokens
// in before calling this.
func (e *Engine) Deposit(i uint16, amount *uint256.Int) error {
	const op = "Deposit"
	a, ok := e.slab.get(i)
	if !ok {
		return newErr(op, ErrKindInvalidInput, ErrUnusedIndex)
	}
	if amount.Cmp(e.Params.MaxDeposit) > 0 {
		return newErr(op, ErrKindInvalidInput, nil)
	}
	return e.atomic([]*Account{a}, func(track func(*Account)) error {
		newV, err := AddU128(e.V, amount)
		if err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		newCapital, err := AddU128(a.Capital, amount)
		if err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		if err := e.setCapital(a, newCapital); err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		e.V = newV

		if err := e.touchAccountFull(a, a.EntryPrice, e.CurrentSlot); err != nil {
			return err
		}
		if err := e.sweepFeeDebt(a); err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		return nil
	})
}

// Withdraw implements withdraw(i, amount, oracle_price, now_slot) (§4.7).
func (e *Engine) Withdraw(i uint16, amount *uint256.Int, oraclePrice uint64, nowSlot uint64) error {
	const op = "Withdraw"
	a, ok := e.slab.get(i)
	if !ok {
		return newErr(op, ErrKindInvalidInput, ErrUnusedIndex)
	}
	if e.WithdrawalOnly {
		return newErr(op, ErrKindWithdrawalOnlyMode, ErrWithdrawalOnly)
	}
	if amount.Cmp(e.Params.MaxWithdrawal) > 0 {
		return newErr(op, ErrKindInvalidInput, nil)
	}
	return e.atomic([]*Account{a}, func(track func(*Account)) error {
		if err := e.touchAccountFull(a, oraclePrice, nowSlot); err != nil {
			return err
		}
		if amount.Cmp(a.Capital) > 0 {
			return newErr(op, ErrKindInsufficientCapital, ErrExceedsCapital)
		}

		newCapital, err := SubU128(a.Capital, amount)
		if err != nil {
			return newErr(op, ErrKindOverflow, err)
		}

		if a.PositionSize.Sign() != 0 {
			savedCapital := a.Capital
			a.Capital = newCapital
			net := e.eqMtmNet(a, oraclePrice)
			a.Capital = savedCapital
			im := e.imReq(a, oraclePrice)
			if net.Cmp(u256ToI128(im)) < 0 {
				return newErr(op, ErrKindMarginViolation, ErrBelowInitial)
			}
		}

		if err := e.setCapital(a, newCapital); err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		newV, err := SubU128(e.V, amount)
		if err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		e.V = newV
		return nil
	})
}

// isRiskIncreasing reports whether moving from oldPos to newPos grows the
// position's absolute magnitude — the trigger for requiring initial
// (rather than maintenance) margin.
func isRiskIncreasing(oldPos, newPos *big.Int) bool {
	return new(big.Int).Abs(newPos).Cmp(new(big.Int).Abs(oldPos)) > 0
}

// tradingFee charges a flat bps fee on the notional of the user's fill.
func tradingFee(fillSize *big.Int, execPrice uint64, bps uint64) (*big.Int, error) {
	notional := new(big.Int).Mul(new(big.Int).Abs(fillSize), new(big.Int).SetUint64(execPrice))
	notional.Quo(notional, big.NewInt(priceScale))
	notional.Mul(notional, new(big.Int).SetUint64(bps))
	notional.Quo(notional, big.NewInt(10_000))
	return notional, checkI128(notional)
}

// ExecuteTrade implements execute_trade(lp_idx, user_idx, oracle_price,
// now_slot, size, exec_price, matcher_result) (§4.7).
func (e *Engine) ExecuteTrade(lpIdx, userIdx uint16, oraclePrice uint64, nowSlot uint64, size *big.Int, execPrice uint64, matcherResult MatcherOut) error {
	const op = "ExecuteTrade"
	lp, ok := e.slab.get(lpIdx)
	if !ok || lp.Kind != KindLP {
		return newErr(op, ErrKindInvalidInput, ErrUnusedIndex)
	}
	user, ok := e.slab.get(userIdx)
	if !ok || user.Kind != KindUser {
		return newErr(op, ErrKindInvalidInput, ErrUnusedIndex)
	}
	if execPrice == 0 || oraclePrice == 0 {
		return newErr(op, ErrKindInvalidInput, ErrZeroPrice)
	}
	if err := matcherResult.validate(size); err != nil {
		return newErr(op, ErrKindInvalidInput, err)
	}

	return e.atomic([]*Account{lp, user}, func(track func(*Account)) error {
		if err := e.touchAccountFull(lp, oraclePrice, nowSlot); err != nil {
			return err
		}
		if err := e.touchAccountFull(user, oraclePrice, nowSlot); err != nil {
			return err
		}

		oldUserPos := new(big.Int).Set(user.PositionSize)
		oldLPPos := new(big.Int).Set(lp.PositionSize)
		oldUserEntry := user.EntryPrice
		oldLPEntry := lp.EntryPrice

		newUserPos, err := AddI128(user.PositionSize, matcherResult.UserFillSize)
		if err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		newLPPos, err := AddI128(lp.PositionSize, matcherResult.LPFillSize)
		if err != nil {
			return newErr(op, ErrKindOverflow, err)
		}

		if e.WithdrawalOnly {
			// Crisis mode: position-reducing trades remain allowed,
			// position-increasing trades are rejected (§4.10).
			if isRiskIncreasing(oldUserPos, newUserPos) || isRiskIncreasing(oldLPPos, newLPPos) {
				return newErr(op, ErrKindWithdrawalOnlyMode, ErrWithdrawalOnly)
			}
		}

		// The pre-trade position didn't trade at exec_price; re-basing its
		// entry there for free would manufacture PnL out of nothing. Realize
		// its mark against exec_price via set_pnl first (the zero-sum
		// transfer of §4.7), then re-base the whole post-trade position at
		// exec_price with a clean slate.
		userRealized := markPnl(oldUserPos, oldUserEntry, execPrice)
		newUserPnl, err := AddI128(user.PNL, userRealized)
		if err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		if err := e.setPnl(user, newUserPnl); err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		lpRealized := markPnl(oldLPPos, oldLPEntry, execPrice)
		newLPPnl, err := AddI128(lp.PNL, lpRealized)
		if err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		if err := e.setPnl(lp, newLPPnl); err != nil {
			return newErr(op, ErrKindOverflow, err)
		}

		user.PositionSize = newUserPos
		lp.PositionSize = newLPPos
		user.EntryPrice = execPrice
		lp.EntryPrice = execPrice

		fee, err := tradingFee(matcherResult.UserFillSize, execPrice, e.Params.TradingFeeBps)
		if err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		if fee.Sign() != 0 {
			pay := i128ToU256(fee)
			if user.Capital.Cmp(pay) < 0 {
				pay = user.Capital
			}
			newCapital, err := SubU128(user.Capital, pay)
			if err != nil {
				return newErr(op, ErrKindOverflow, err)
			}
			if err := e.setCapital(user, newCapital); err != nil {
				return newErr(op, ErrKindOverflow, err)
			}
			newI, err := AddU128(e.I, pay)
			if err != nil {
				return newErr(op, ErrKindOverflow, err)
			}
			e.I = newI
		}

		e.refreshWarmupSlope(user)
		e.refreshWarmupSlope(lp)

		if err := e.enforceMargin(user, oldUserPos, oraclePrice); err != nil {
			return err
		}
		if err := e.enforceMargin(lp, oldLPPos, oraclePrice); err != nil {
			return err
		}

		if err := e.sweepFeeDebt(user); err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		if err := e.sweepFeeDebt(lp); err != nil {
			return newErr(op, ErrKindOverflow, err)
		}
		return nil
	})
}

// enforceMargin is the post-trade check of §4.7: always require Eq_mtm_net
// above maintenance; require it above initial margin as well when the
// trade grew the account's position magnitude.
func (e *Engine) enforceMargin(a *Account, oldPos *big.Int, oraclePrice uint64) error {
	net := e.eqMtmNet(a, oraclePrice)
	mm := e.mmReq(a, oraclePrice)
	if net.Cmp(u256ToI128(mm)) <= 0 {
		return newErr("ExecuteTrade", ErrKindMarginViolation, ErrBelowMaintenance)
	}
	if isRiskIncreasing(oldPos, a.PositionSize) {
		im := e.imReq(a, oraclePrice)
		if net.Cmp(u256ToI128(im)) < 0 {
			return newErr("ExecuteTrade", ErrKindMarginViolation, ErrBelowInitial)
		}
	}
	return nil
}

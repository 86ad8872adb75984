package engine

import (
	"math/big"

	"github.com/holiman/uint256"
)

// addAccount is the shared O(1) allocation path behind AddUser and AddLP
// (§3 lifecycle): charges an account-creation fee deducted from the
// initial deposit and credited to insurance, then initializes
// funding_index_snapshot and warmup_started_at_slot from the engine's
// current state.
func (e *Engine) addAccount(kind AccountKind, feePayment *uint256.Int, matcherProgram, matcherContext [32]byte) (uint16, error) {
	const op = "AddAccount"
	if feePayment.Cmp(e.Params.MaxDeposit) > 0 {
		return 0, newErr(op, ErrKindInvalidInput, nil)
	}

	fee := new(uint256.Int).Mul(feePayment, uint256.NewInt(e.Params.AccountCreationFeeBps))
	fee.Div(fee, uint256.NewInt(10_000))
	initialCapital := new(uint256.Int).Sub(feePayment, fee)

	acc := newAccount(kind)
	acc.MatcherProgram = matcherProgram
	acc.MatcherContext = matcherContext
	acc.FundingIndexSnapshot = new(big.Int).Set(e.FundingIndex)
	acc.WarmupStartedAtSlot = e.CurrentSlot

	idx, err := e.slab.alloc(acc)
	if err != nil {
		return 0, newErr(op, ErrKindSlabFull, err)
	}

	if err := e.setCapital(acc, initialCapital); err != nil {
		e.slab.free(idx)
		return 0, newErr(op, ErrKindOverflow, err)
	}
	newV, err := AddU128(e.V, feePayment)
	if err != nil {
		e.slab.free(idx)
		return 0, newErr(op, ErrKindOverflow, err)
	}
	e.V = newV
	if !fee.IsZero() {
		newI, err := AddU128(e.I, fee)
		if err != nil {
			e.slab.free(idx)
			return 0, newErr(op, ErrKindOverflow, err)
		}
		e.I = newI
	}
	return idx, nil
}

// AddUser implements add_user(fee_payment) -> u16 (§6).
func (e *Engine) AddUser(feePayment *uint256.Int) (uint16, error) {
	return e.addAccount(KindUser, feePayment, [32]byte{}, [32]byte{})
}

// AddLP implements add_lp(matcher_program, matcher_context, fee_payment) ->
// u16 (§6).
func (e *Engine) AddLP(matcherProgram, matcherContext [32]byte, feePayment *uint256.Int) (uint16, error) {
	return e.addAccount(KindLP, feePayment, matcherProgram, matcherContext)
}

// CloseAccount implements close_account(i) -> u128 (§6): only legal when
// flat (no position, no fee debt); returns capital plus whatever pnl had
// already converted to capital via settlement. Any pnl that had not yet
// matured through warmup is forfeited (decrementing PNL_pos_tot) rather
// than paid out, since it was never vault-cash-backed. The forfeited amount
// is not credited to insurance (I); it stays in V as unclaimed residual.
func (e *Engine) CloseAccount(i uint16) (*uint256.Int, error) {
	const op = "CloseAccount"
	a, ok := e.slab.get(i)
	if !ok {
		return nil, newErr(op, ErrKindInvalidInput, ErrUnusedIndex)
	}

	var result *uint256.Int
	err := e.atomic([]*Account{a}, func(track func(*Account)) error {
		if err := e.touchAccountFull(a, a.EntryPrice, e.CurrentSlot); err != nil {
			return err
		}
		if a.PositionSize.Sign() != 0 {
			return newErr(op, ErrKindInvalidInput, ErrAccountNotFlat)
		}
		if feeDebt(a).Sign() != 0 {
			return newErr(op, ErrKindInvalidInput, ErrAccountNotFlat)
		}
		if a.PNL.Sign() != 0 {
			if err := e.setPnl(a, zeroI()); err != nil {
				return err
			}
		}
		result = new(uint256.Int).Set(a.Capital)
		if err := e.setCapital(a, zeroU256()); err != nil {
			return err
		}
		newV, err := SubU128(e.V, result)
		if err != nil {
			return err
		}
		e.V = newV
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.slab.free(i)
	return result, nil
}

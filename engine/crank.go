package engine

import "math/big"

// CrankEventKind classifies what happened to one account during a keeper
// crank pass.
type CrankEventKind int

const (
	CrankFundingAccrued CrankEventKind = iota
	CrankAccountTouched
	CrankLiquidated
	CrankGCed
	CrankSkippedError
)

// CrankEvent is the concrete shape of the "opaque event hook" §4.7
// requires for the keeper crank's best-effort error policy, without
// naming one.
type CrankEvent struct {
	Kind    CrankEventKind
	Account uint16
	Err     error
}

// CrankObserver receives crank events. A nil observer drops them.
type CrankObserver func(CrankEvent)

// OraclePriceLookup resolves the oracle price for the instrument an
// account is trading. The crank has no notion of "instrument" itself (that
// belongs to the host); it is handed a lookup closure per call.
type OraclePriceLookup func(a *Account) uint64

// KeeperCrank implements keeper_crank(now_slot, oracle_price_by_instrument,
// budget) (§4.7). Permissionless, safe at any time, no-op when idle. A
// single failing account never poisons the crank: per-account failures are
// reported to obs and skipped (§7's sole exception to strict error
// propagation).
func (e *Engine) KeeperCrank(nowSlot uint64, prices OraclePriceLookup, budget uint16, obs CrankObserver) error {
	if budget == 0 {
		budget = e.Params.CrankDefaultBudget
	}
	if err := e.accrueFunding(nowSlot); err != nil {
		return newErr("KeeperCrank", ErrKindOverflow, err)
	}
	if obs != nil {
		obs(CrankEvent{Kind: CrankFundingAccrued})
	}

	n := len(e.slab.accounts)
	if n == 0 {
		return nil
	}
	visited := uint16(0)
	cursor := e.crankCursor
	for visited < budget && visited < uint16(n) {
		idx := cursor
		cursor++
		if int(cursor) >= n {
			cursor = 0
		}
		visited++

		a, ok := e.slab.get(idx)
		if !ok {
			continue
		}
		price := prices(a)
		if price == 0 {
			price = a.EntryPrice
		}

		if err := e.crankOneAccount(idx, a, price, nowSlot, obs); err != nil {
			if obs != nil {
				obs(CrankEvent{Kind: CrankSkippedError, Account: idx, Err: err})
			}
		}
	}
	e.crankCursor = cursor
	return nil
}

// crankOneAccount performs the per-account maintenance walk of §4.7 step 3
// for a single slot, rolling back that one account's mutation on failure
// so a bad account cannot poison the rest of the crank.
func (e *Engine) crankOneAccount(idx uint16, a *Account, price uint64, nowSlot uint64, obs CrankObserver) error {
	return e.atomic([]*Account{a}, func(track func(*Account)) error {
		// Capture the pre-repricing position before touch_account_full's
		// step 3 re-bases EntryPrice to price; see liquidation.go for why
		// re-marking the post-touch position would always yield zero.
		oldPos := new(big.Int).Set(a.PositionSize)
		oldEntry := a.EntryPrice

		if err := e.touchAccountFull(a, price, nowSlot); err != nil {
			return err
		}
		if obs != nil {
			obs(CrankEvent{Kind: CrankAccountTouched, Account: idx})
		}

		if a.PositionSize.Sign() != 0 {
			net := e.eqMtmNet(a, price)
			mm := e.mmReq(a, price)
			if net.Cmp(u256ToI128(mm)) <= 0 {
				// Liquidate at oracle, no matcher needed: the keeper is
				// the crank's own caller conceptually, but since the
				// crank is permissionless and has no keeper index here,
				// the realized mark routes entirely through ADL/insurance
				// with no keeper capital credit. mark is the same
				// quantity touch_account_full's step 3 already folded
				// into a.PNL above; it's recomputed (not reapplied) only
				// to learn its sign.
				mark := markPnl(oldPos, oldEntry, price)
				a.PositionSize = zeroI()
				switch mark.Sign() {
				case 1:
					res, err := e.runADL(idx, mark)
					if err != nil {
						return err
					}
					for hIdx := range res.haircuts {
						if ha, ok := e.slab.get(hIdx); ok {
							track(ha)
						}
					}
					if err := e.applyADL(res, nowSlot); err != nil {
						return err
					}
				case -1:
					neg := i128ToU256(new(big.Int).Neg(mark))
					newI, err := AddU128(e.I, neg)
					if err != nil {
						return err
					}
					e.I = newI
				}
				if err := e.settleLoss(a); err != nil {
					return err
				}
				if err := e.convertProfit(a); err != nil {
					return err
				}
				if err := e.sweepFeeDebt(a); err != nil {
					return err
				}
				if obs != nil {
					obs(CrankEvent{Kind: CrankLiquidated, Account: idx})
				}
			}
		}

		if e.isDust(a) {
			e.slab.free(idx)
			if obs != nil {
				obs(CrankEvent{Kind: CrankGCed, Account: idx})
			}
		} else if a.PositionSize.Sign() == 0 && maxI(a.PNL, zeroI()).Sign() == 0 {
			a.FundingIndexSnapshot = new(big.Int).Set(e.FundingIndex)
		}
		return nil
	})
}

// isDust reports whether a slot is eligible for GC: flat, no capital, no
// positive pnl, and no outstanding fee debt.
func (e *Engine) isDust(a *Account) bool {
	return a.PositionSize.Sign() == 0 &&
		a.Capital.IsZero() &&
		maxI(a.PNL, zeroI()).Sign() == 0 &&
		feeDebt(a).Sign() == 0
}

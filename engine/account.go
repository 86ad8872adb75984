package engine

import (
	"math/big"

	"github.com/holiman/uint256"
)

// AccountKind discriminates User and LP accounts. There is no inheritance
// and no shared base type: both kinds use the same Account record and the
// same operations, per the sum-type-over-inheritance design.
type AccountKind uint8

const (
	KindUser AccountKind = 0
	KindLP   AccountKind = 1
)

// Account is one record of the fixed slab, addressed by a uint16 index.
type Account struct {
	Kind AccountKind

	Capital     *uint256.Int // C_i, protected principal
	PNL         *big.Int     // PNL_i, signed realized pnl
	ReservedPNL *uint256.Int // reservation against in-flight withdrawals

	WarmupStartedAtSlot uint64
	WarmupSlopePerStep  *uint256.Int

	PositionSize *big.Int // signed base units
	EntryPrice   uint64   // scaled 1e6

	FundingIndexSnapshot *big.Int // i128 snapshot of Engine.FundingIndex

	FeeCredits *big.Int // signed; negative magnitude is fee debt

	MatcherProgram [32]byte
	MatcherContext [32]byte
}

func newAccount(kind AccountKind) *Account {
	return &Account{
		Kind:                 kind,
		Capital:              zeroU256(),
		PNL:                  zeroI(),
		ReservedPNL:          zeroU256(),
		WarmupSlopePerStep:   zeroU256(),
		PositionSize:         zeroI(),
		FundingIndexSnapshot: zeroI(),
		FeeCredits:           zeroI(),
	}
}

// setCapital is the single mutator for Account.Capital. It keeps
// Engine.C_tot in sync with a checked signed delta. Direct writes to
// Capital anywhere else are forbidden.
func (e *Engine) setCapital(a *Account, newValue *uint256.Int) error {
	if err := checkU128(newValue); err != nil {
		return err
	}
	old := a.Capital
	if newValue.Cmp(old) >= 0 {
		delta := new(uint256.Int).Sub(newValue, old)
		ctot, err := AddU128(e.CTot, delta)
		if err != nil {
			return err
		}
		e.CTot = ctot
	} else {
		delta := new(uint256.Int).Sub(old, newValue)
		ctot, err := SubU128(e.CTot, delta)
		if err != nil {
			return err
		}
		e.CTot = ctot
	}
	a.Capital = newValue
	return nil
}

// setPnl is the single mutator for Account.PNL. It keeps Engine.PNLPosTot
// in sync with max(new,0) - max(old,0).
func (e *Engine) setPnl(a *Account, newValue *big.Int) error {
	if err := checkI128(newValue); err != nil {
		return err
	}
	oldPos := maxI(a.PNL, zeroI())
	newPos := maxI(newValue, zeroI())
	if newPos.Cmp(oldPos) >= 0 {
		delta := i128ToU256(new(big.Int).Sub(newPos, oldPos))
		tot, err := AddU128(e.PNLPosTot, delta)
		if err != nil {
			return err
		}
		e.PNLPosTot = tot
	} else {
		delta := i128ToU256(new(big.Int).Sub(oldPos, newPos))
		tot, err := SubU128(e.PNLPosTot, delta)
		if err != nil {
			return err
		}
		e.PNLPosTot = tot
	}
	a.PNL = newValue
	return nil
}

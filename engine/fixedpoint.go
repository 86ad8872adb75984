package engine

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Max128 and Min128 bound the signed 128-bit range used for pnl, position
// size, funding index, and funding payments. uint256.Int is natively
// 256-bit; unsigned quantities (capital, V, I) are bound-checked against
// max128 below on every mutation so a value never silently grows past the
// 128 bits the wire format reserves for it.
var (
	Max128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	Min128 = new(big.Int).Neg(new(big.Int).Add(Max128, big.NewInt(1)))
)

var max128U256 = func() *uint256.Int {
	var m uint256.Int
	m.SetAllOne()
	m.Rsh(&m, 128)
	return &m
}()

func zeroU256() *uint256.Int { return new(uint256.Int) }

// checkU128 reports ErrOverflow if v exceeds the 128-bit unsigned range.
func checkU128(v *uint256.Int) error {
	if v.Cmp(max128U256) > 0 {
		return ErrOverflow
	}
	return nil
}

// AddU128 returns a+b, bound-checked to 128 bits.
func AddU128(a, b *uint256.Int) (*uint256.Int, error) {
	res, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	if err := checkU128(res); err != nil {
		return nil, err
	}
	return res, nil
}

// SubU128 returns a-b; underflow (b>a) is reported as ErrOverflow, matching
// the checked-arithmetic convention used throughout the kernel.
func SubU128(a, b *uint256.Int) (*uint256.Int, error) {
	if a.Cmp(b) < 0 {
		return nil, ErrOverflow
	}
	return new(uint256.Int).Sub(a, b), nil
}

// U128FromUint64 builds a uint256.Int from a plain uint64 literal (test/seed
// scenario convenience).
func U128FromUint64(v uint64) *uint256.Int { return uint256.NewInt(v) }

// checkI128 reports ErrOverflow if v exceeds the signed 128-bit range.
func checkI128(v *big.Int) error {
	if v.Cmp(Max128) > 0 || v.Cmp(Min128) < 0 {
		return ErrOverflow
	}
	return nil
}

// AddI128 returns a+b, bound-checked to signed 128 bits.
func AddI128(a, b *big.Int) (*big.Int, error) {
	res := new(big.Int).Add(a, b)
	if err := checkI128(res); err != nil {
		return nil, err
	}
	return res, nil
}

// SubI128 returns a-b, bound-checked to signed 128 bits.
func SubI128(a, b *big.Int) (*big.Int, error) {
	return AddI128(a, new(big.Int).Neg(b))
}

// MulI128 returns a*b, bound-checked to signed 128 bits.
func MulI128(a, b *big.Int) (*big.Int, error) {
	res := new(big.Int).Mul(a, b)
	if err := checkI128(res); err != nil {
		return nil, err
	}
	return res, nil
}

func maxI(a, b *big.Int) *big.Int {
	if a.Cmp(b) > 0 {
		return a
	}
	return b
}

func minI(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return a
	}
	return b
}

func zeroI() *big.Int { return big.NewInt(0) }

// i128ToU256 converts a non-negative *big.Int to *uint256.Int. Callers must
// ensure v is non-negative; negative input is clamped to zero rather than
// panicking, matching the kernel's never-panic propagation policy.
func i128ToU256(v *big.Int) *uint256.Int {
	if v.Sign() < 0 {
		return zeroU256()
	}
	u, _ := uint256.FromBig(v)
	return u
}

func u256ToI128(v *uint256.Int) *big.Int {
	return v.ToBig()
}

const priceScale = 1_000_000

// fundingPayment computes position*deltaF/1e6 with the rounding direction
// decided for the ambiguous "conservative rounding" clause: truncation
// (round toward zero) for longs, round-away-from-zero for shorts. This
// bounds the payer side of the zero-sum pair from ever being under-charged
// by more than one atom.
func fundingPayment(position, deltaF *big.Int) *big.Int {
	if position.Sign() == 0 || deltaF.Sign() == 0 {
		return zeroI()
	}
	num := new(big.Int).Mul(position, deltaF)
	scale := big.NewInt(priceScale)
	q := new(big.Int)
	r := new(big.Int)
	q.QuoRem(num, scale, r)
	if r.Sign() == 0 {
		return q
	}
	if position.Sign() > 0 {
		return q // longs: truncation is already round-toward-zero
	}
	if q.Sign() >= 0 {
		return q.Add(q, big.NewInt(1))
	}
	return q.Sub(q, big.NewInt(1))
}

// markPnl computes the mark-to-oracle PnL delta for a position moving from
// entryPrice to oraclePrice, both scaled by 1e6.
func markPnl(positionSize *big.Int, entryPrice, oraclePrice uint64) *big.Int {
	if positionSize.Sign() == 0 || entryPrice == oraclePrice {
		return zeroI()
	}
	diff := new(big.Int).Sub(big.NewInt(0).SetUint64(oraclePrice), big.NewInt(0).SetUint64(entryPrice))
	num := new(big.Int).Mul(positionSize, diff)
	q, r := new(big.Int).QuoRem(num, big.NewInt(priceScale), new(big.Int))
	if r.Sign() == 0 {
		return q
	}
	if num.Sign() > 0 {
		return q
	}
	return q.Sub(q, big.NewInt(1))
}

// floorMulDiv computes floor(a*hNum/hDen) for non-negative a, hNum, hDen.
func floorMulDiv(a, hNum, hDen *big.Int) *big.Int {
	if hDen.Sign() == 0 {
		return zeroI()
	}
	num := new(big.Int).Mul(a, hNum)
	q := new(big.Int).Quo(num, hDen)
	return q
}
